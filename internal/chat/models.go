package chat

import "time"

// Thread is one conversation. PublicID is the caller-facing ULID;
// threads are created lazily when a request arrives without a usable
// one.
type Thread struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID  string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"thread_id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Title     string    `gorm:"type:varchar(100)" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Thread) TableName() string { return "threads" }

// Message rows come in pairs: user + assistant sharing a turn number.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID  uint64    `gorm:"not null;index:idx_messages_thread_turn,priority:1" json:"thread_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Turn      int       `gorm:"not null;index:idx_messages_thread_turn,priority:2" json:"turn"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Run records token usage for one completed assistant turn.
type Run struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID     uint64    `gorm:"index;not null" json:"thread_id"`
	MessageID    uint64    `gorm:"index;not null" json:"message_id"`
	Turn         int       `gorm:"not null" json:"turn"`
	ModelName    string    `gorm:"type:varchar(64);not null" json:"model_name"`
	InputTokens  int       `gorm:"not null" json:"input_tokens"`
	OutputTokens int       `gorm:"not null" json:"output_tokens"`
	TotalTokens  int       `gorm:"not null" json:"total_tokens"`
	CostCents    int       `gorm:"not null" json:"cost_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Run) TableName() string { return "runs" }

type Feedback struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID uint64    `gorm:"index;not null" json:"message_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:varchar(500)" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func (Feedback) TableName() string { return "feedback" }
