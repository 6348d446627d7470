package repository

import (
	"context"

	"github.com/kristishqau/billaroo-sub001/internal/models"
)

type ProjectRepository struct {
	db DBTX
}

func NewProjectRepository(db DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	query := `
		SELECT id, name, freelancer_id, client_id, created_at
		FROM projects
		WHERE id = $1
	`

	var project models.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.FreelancerID,
		&project.ClientID,
		&project.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &project, nil
}
