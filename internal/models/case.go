package models

// Case 表示一個案件的靜態內容，對房間來說是唯讀的
type Case struct {
	ID          string   `gorm:"primaryKey;size:64" json:"id"`
	Title       string   `gorm:"size:200;not null" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	Victim      string   `gorm:"size:200" json:"victim"`
	Solution    string   `gorm:"type:text;not null" json:"-"`
	Keywords    []string `gorm:"serializer:json;type:text" json:"-"` // 若設定，答案需包含全部關鍵字
	Clues       []Clue   `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE" json:"clues"`
}

// Clue 是案件中的一條線索，以 Index 定位
type Clue struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	CaseID   string `gorm:"size:64;not null;uniqueIndex:idx_clues_case_index,priority:1" json:"-"`
	Index    int    `gorm:"column:clue_index;not null;uniqueIndex:idx_clues_case_index,priority:2" json:"index"`
	Title    string `gorm:"size:200;not null" json:"title"`
	Body     string `gorm:"type:text" json:"body"`
	MediaURL string `gorm:"size:500" json:"media_url,omitempty"`
	Category string `gorm:"size:32" json:"category"`
}

// ClueAt 依索引取得線索
func (c *Case) ClueAt(index int) (Clue, bool) {
	if index < 0 || index >= len(c.Clues) {
		return Clue{}, false
	}
	return c.Clues[index], true
}
