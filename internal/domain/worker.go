package domain

// Worker is the subset of the workforce record the engine reads.
type Worker struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`
}
