package source

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/lifeline/internal/models"
)

const delim = "---"

// parseItem reads a Markdown item: YAML frontmatter carries the fields of a
// models.Item and the body becomes its description. Without frontmatter the
// first H1 is used as title and the item has no dates, so normalization will
// reject it.
func parseItem(data []byte) (models.Item, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return models.Item{}, err
	}
	var it models.Item
	if fm != nil {
		if err := yaml.Unmarshal(fm, &it); err != nil {
			return models.Item{}, err
		}
	}
	if strings.TrimSpace(it.Description) == "" {
		it.Description = strings.TrimSpace(body)
	}
	if it.Title == "" {
		it.Title = firstHeading(body)
	}
	return it, nil
}

// splitFrontmatter separates the YAML block between leading --- lines from the
// body. Content without a closed block is all body.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}
	block := rest[:idx]
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return block, body, nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
