package models

import "time"

type Project struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	FreelancerID int64     `json:"freelancer_id"`
	ClientID     int64     `json:"client_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type ProjectRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
