package chat

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateThread(ctx context.Context, t *Thread) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repo) GetThreadByPublicID(ctx context.Context, publicID string) (*Thread, error) {
	var t Thread
	if err := r.db.WithContext(ctx).
		Where("public_id = ?", publicID).
		First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) ListThreadsByUser(ctx context.Context, userID uint64) ([]Thread, error) {
	var threads []Thread
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&threads).Error; err != nil {
		return nil, err
	}
	return threads, nil
}

// NextTurn returns max(turn)+1 for the thread, 1 for a fresh thread.
func (r *Repo) NextTurn(ctx context.Context, threadID uint64) (int, error) {
	var maxTurn int
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("thread_id = ?", threadID).
		Select("COALESCE(MAX(turn), 0)").
		Scan(&maxTurn).Error; err != nil {
		return 0, err
	}
	return maxTurn + 1, nil
}

// CreateTurn writes the user and assistant rows of one completed
// exchange in a single transaction, sharing the turn number.
func (r *Repo) CreateTurn(ctx context.Context, threadID uint64, turn int, userText, assistantText string) (*Message, *Message, error) {
	userMsg := &Message{ThreadID: threadID, Role: "user", Content: userText, Turn: turn}
	assistantMsg := &Message{ThreadID: threadID, Role: "assistant", Content: assistantText, Turn: turn}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		return tx.Create(assistantMsg).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return userMsg, assistantMsg, nil
}

// ListRecentMessagesDesc returns the most recent messages newest-first.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, threadID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) ListMessagesByThread(ctx context.Context, threadID uint64) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) ListMessagesByTurn(ctx context.Context, threadID uint64, turn int) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ? AND turn = ?", threadID, turn).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) GetMessage(ctx context.Context, id uint64) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) CreateRun(ctx context.Context, run *Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repo) ListRunsByThread(ctx context.Context, threadID uint64) ([]Run, error) {
	var runs []Run
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id DESC").
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *Repo) CreateFeedback(ctx context.Context, fb *Feedback) error {
	return r.db.WithContext(ctx).Create(fb).Error
}
