package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/nodeboss/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, org_id, actor_type, actor_id, action, target_type, target_id,
			metadata, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrgID, entry.ActorType, entry.ActorID,
		entry.Action, entry.TargetType, entry.TargetID,
		entry.Metadata, entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	).Error
}

// List pages newest first by id. An action ending in ".*" matches the whole
// family, so "commission.*" returns every commission event.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	conds := []string{"org_id = ?"}
	args := []any{filter.OrgID}

	if action := strings.TrimSpace(filter.Action); action != "" {
		if family, ok := strings.CutSuffix(action, ".*"); ok {
			conds = append(conds, "action LIKE ?")
			args = append(args, family+".%")
		} else {
			conds = append(conds, "action = ?")
			args = append(args, action)
		}
	}
	for column, value := range map[string]string{
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
		"actor_type":  filter.ActorType,
		"actor_id":    filter.ActorID,
	} {
		if value = strings.TrimSpace(value); value != "" {
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	if filter.StartAt != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		conds = append(conds, "id < ?")
		args = append(args, *filter.Cursor)
	}

	query := `SELECT * FROM audit_logs WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit+1)
	}

	var logs []*domain.AuditLog
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
