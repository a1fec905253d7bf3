package record

import "time"

// Message is a chat message.
type Message struct {
	ID        string
	SenderID  string
	Type      string // "text", "image", "system"
	Content   string
	Channel   string
	CreatedAt time.Time
}

// MessageFrom reads a message view from a record.
func MessageFrom(r Record) Message {
	return Message{
		ID:        r.ID,
		SenderID:  r.String("sender_id"),
		Type:      r.String("type"),
		Content:   r.String("content"),
		Channel:   r.String("channel"),
		CreatedAt: r.CreatedAt,
	}
}

// NewMessageFields builds the payload for a chat message create.
func NewMessageFields(msgType, content string) map[string]any {
	if msgType == "" {
		msgType = "text"
	}
	return map[string]any{"type": msgType, "content": content}
}

// Task is a household task.
type Task struct {
	ID         string
	Title      string
	AssigneeID string
	Due        string
	Done       bool
	CreatedBy  string
	CreatedAt  time.Time
}

// TaskFrom reads a task view from a record.
func TaskFrom(r Record) Task {
	return Task{
		ID:         r.ID,
		Title:      r.String("title"),
		AssigneeID: r.String("assignee_id"),
		Due:        r.String("due"),
		Done:       r.Bool("done"),
		CreatedBy:  r.String("created_by"),
		CreatedAt:  r.CreatedAt,
	}
}

// Grocery is a shopping list entry.
type Grocery struct {
	ID       string
	Name     string
	Quantity string
	Checked  bool
	AddedBy  string
}

// GroceryFrom reads a grocery view from a record.
func GroceryFrom(r Record) Grocery {
	return Grocery{
		ID:       r.ID,
		Name:     r.String("name"),
		Quantity: r.String("quantity"),
		Checked:  r.Bool("checked"),
		AddedBy:  r.String("added_by"),
	}
}

// Completion marks a task done on a given day.
type Completion struct {
	ID          string
	TaskID      string
	Date        string
	CompletedBy string
}

// CompletionFrom reads a completion view from a record.
func CompletionFrom(r Record) Completion {
	return Completion{
		ID:          r.ID,
		TaskID:      r.String("task_id"),
		Date:        r.String("date"),
		CompletedBy: r.String("completed_by"),
	}
}

// Meal is one planned meal slot.
type Meal struct {
	ID   string
	Date string
	Slot string // "breakfast", "lunch", "dinner"
	Dish string
}

// MealFrom reads a meal view from a record.
func MealFrom(r Record) Meal {
	return Meal{
		ID:   r.ID,
		Date: r.String("date"),
		Slot: r.String("slot"),
		Dish: r.String("dish"),
	}
}
