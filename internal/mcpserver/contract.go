package mcpserver

// ItemFormatContract describes how a local timeline export is laid out, for
// LLM consumers that write items the file source will pick up.
const ItemFormatContract = `# Lifeline Export Format

A local export is a directory tree. Every top-level directory is a timeline;
every Markdown file inside it (at any depth) is one item of that timeline.

## Timelines

` + "```" + `text
export/
  career/
    timeline.yaml        # OPTIONAL
    2021-new-job.md
    promotions/2023.md
  travel/
    lisbon.md
` + "```" + `

` + "`" + `timeline.yaml` + "`" + ` may set a display title:

` + "```" + `yaml
title: Career
` + "```" + `

Without it the directory name is the title. Timelines are ordered by
directory name; that order decides group ids and colors. Hidden directories
are ignored.

## Items

` + "```" + `markdown
---
title: New job in Berlin   # OPTIONAL, falls back to the first "# " heading
startDate: 2021-03-01      # REQUIRED, YYYY-MM-DD or RFC 3339
endDate: 2021-03-01        # OPTIONAL, see below
tags:
  - work
impact: high               # OPTIONAL, free text
images:                    # OPTIONAL, shown as thumbnails when enabled
  - https://example.com/office.jpg
---

The body becomes the item description.
` + "```" + `

## Rules

1. The item id is the file path relative to the export root, with forward
   slashes (e.g. ` + "`" + `career/promotions/2023.md` + "`" + `).
2. No ` + "`" + `endDate` + "`" + `: the item is ongoing and ends today.
3. ` + "`" + `endDate` + "`" + ` equal to ` + "`" + `startDate` + "`" + `: the item spans that whole day.
4. ` + "`" + `endDate` + "`" + ` before ` + "`" + `startDate` + "`" + `, or an unparsable date: the item is
   skipped and logged. The rest of the export still loads.
5. Files are UTF-8. Saving a file refreshes every open view.
`
