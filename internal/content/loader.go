// Package content 從 YAML 檔案讀取案件內容並匯入 CaseRepository。
package content

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
)

// 合法的線索類型
var clueCategories = map[string]bool{
	"document": true,
	"video":    true,
	"physical": true,
	"evidence": true,
}

type caseFile struct {
	Cases []caseDoc `yaml:"cases"`
}

type caseDoc struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Victim      string    `yaml:"victim"`
	Solution    string    `yaml:"solution"`
	Keywords    []string  `yaml:"keywords"`
	Clues       []clueDoc `yaml:"clues"`
}

type clueDoc struct {
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
	MediaURL string `yaml:"media_url"`
	Category string `yaml:"category"`
}

// Parse 解析案件檔案。線索索引依檔案中的順序從 0 開始編號。
func Parse(r io.Reader) ([]models.Case, error) {
	var file caseFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("content: decode case file: %w", err)
	}

	seen := make(map[string]bool, len(file.Cases))
	cases := make([]models.Case, 0, len(file.Cases))
	for i, doc := range file.Cases {
		c, err := doc.toModel()
		if err != nil {
			return nil, fmt.Errorf("content: case #%d: %w", i, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("content: duplicate case id %q", c.ID)
		}
		seen[c.ID] = true
		cases = append(cases, c)
	}
	return cases, nil
}

func (d caseDoc) toModel() (models.Case, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return models.Case{}, fmt.Errorf("missing id")
	}
	if strings.TrimSpace(d.Title) == "" {
		return models.Case{}, fmt.Errorf("case %s: missing title", id)
	}
	if strings.TrimSpace(d.Solution) == "" {
		return models.Case{}, fmt.Errorf("case %s: missing solution", id)
	}

	c := models.Case{
		ID:          id,
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		Victim:      strings.TrimSpace(d.Victim),
		Solution:    strings.TrimSpace(d.Solution),
		Clues:       make([]models.Clue, 0, len(d.Clues)),
	}
	for _, kw := range d.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			c.Keywords = append(c.Keywords, kw)
		}
	}
	for i, cd := range d.Clues {
		if strings.TrimSpace(cd.Title) == "" {
			return models.Case{}, fmt.Errorf("case %s: clue %d: missing title", id, i)
		}
		category := strings.ToLower(strings.TrimSpace(cd.Category))
		if category == "" {
			category = "document"
		}
		if !clueCategories[category] {
			return models.Case{}, fmt.Errorf("case %s: clue %d: unknown category %q", id, i, cd.Category)
		}
		c.Clues = append(c.Clues, models.Clue{
			CaseID:   id,
			Index:    i,
			Title:    strings.TrimSpace(cd.Title),
			Body:     strings.TrimSpace(cd.Body),
			MediaURL: strings.TrimSpace(cd.MediaURL),
			Category: category,
		})
	}
	return c, nil
}

// LoadFile 讀取並解析指定路徑的案件檔案
func LoadFile(path string) ([]models.Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Seed 將案件逐一寫入 repository，回傳成功匯入的數量
func Seed(ctx context.Context, repo repository.CaseRepository, cases []models.Case) (int, error) {
	for i := range cases {
		if err := repo.Upsert(ctx, &cases[i]); err != nil {
			return i, fmt.Errorf("content: upsert case %s: %w", cases[i].ID, err)
		}
	}
	return len(cases), nil
}
