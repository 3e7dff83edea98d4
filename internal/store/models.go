package store

// UserStatus is the completion of every recorded tour for one user.
type UserStatus struct {
	UserID string          `json:"userId"`
	Tours  map[string]bool `json:"tours"`
}

// Stats is the admin summary over all users.
type Stats struct {
	TotalUsers int            `json:"totalUsers"`
	Completed  map[string]int `json:"completed"`
	Details    []UserStatus   `json:"details"`
}
