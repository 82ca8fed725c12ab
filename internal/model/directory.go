package model

// Agent is a support agent who can be assigned conversations.
type Agent struct {
	ID           int    `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	DepartmentID *int   `json:"department_id,omitempty" yaml:"department_id,omitempty"`
}

// Department groups agents.
type Department struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}
