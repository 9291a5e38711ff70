package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of items grouped by status for one queue.
func (s *Store) Stats(ctx context.Context, queueName string) (Stats, error) {
	table, err := tableFor(queueName)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), fmt.Sprintf("SELECT status, COUNT(1) FROM %s GROUP BY status", table))
	if err != nil {
		return nil, fmt.Errorf("%s stats: %w", queueName, err)
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Depths returns per-status counts for every queue.
func (s *Store) Depths(ctx context.Context) (map[string]Stats, error) {
	out := make(map[string]Stats, len(queueNames))
	for _, name := range queueNames {
		stats, err := s.Stats(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = stats
	}
	return out, nil
}

// Health aggregates queue state across every queue for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	depths, err := s.Depths(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for _, stats := range depths {
		health.Total += stats.Total()
		health.Pending += stats[StatusPending]
		health.Processing += stats[StatusProcessing]
		health.Failed += stats[StatusFailed]
		health.Completed += stats[StatusCompleted]
		health.Exhausted += stats[StatusExhausted]
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the Ledger database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		Driver:   s.dialect.name,
		Location: s.location,
	}

	if s.dialect.name == sqliteDialect.name {
		info, err := os.Stat(s.location)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return health, nil
			}
			return health, fmt.Errorf("stat ledger database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("ledger database path %q is a directory", s.location)
		}
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("ledger database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping ledger database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := s.SchemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	for _, name := range queueNames {
		table, _ := tableFor(name)
		var count int
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		health.TotalItems += count
		// Probing each column keeps the check dialect-neutral.
		for _, column := range itemColumnNames {
			rows, err := s.db.QueryContext(connCtx, fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0", column, table))
			if err != nil {
				health.MissingColumns = append(health.MissingColumns, table+"."+column)
				continue
			}
			_ = rows.Close()
		}
	}

	if s.dialect.name == sqliteDialect.name {
		var result string
		if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&result); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("integrity check: %w", err)
		}
		health.IntegrityCheck = strings.EqualFold(result, "ok")
	} else {
		health.IntegrityCheck = true
	}

	return health, nil
}
