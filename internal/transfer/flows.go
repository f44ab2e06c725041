package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/audit"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/destination"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/intent"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/pgdb"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
)

// Transfer copies one source row into the destination and records which
// destination key it received. With ResetSequence the destination table and
// the pair's mapping are emptied first.
func (s *Service) Transfer(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := s.run(ctx, "transfer", requestAttrs(req.SourceDB, req.Table, req.RowKey), func(ctx context.Context) error {
		var err error
		res, err = s.transfer(ctx, req)
		return err
	})
	return res, err
}

func (s *Service) transfer(ctx context.Context, req Request) (Result, error) {
	t, err := s.target(ctx, req)
	if err != nil {
		return Result{}, err
	}
	key, err := record.ParseKey(req.RowKey, t.keyCols)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	// fetched before any destination work so a missing row changes nothing
	row, err := s.source.FetchRow(ctx, t.src, key)
	if err != nil {
		return Result{}, err
	}
	oldKey, err := record.KeyString(row, t.keyCols)
	if err != nil {
		return Result{}, err
	}

	misses := &missLog{metrics: s.metrics}
	var newKey string
	err = pgdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgdb.LockXact(ctx, tx, pairLock(t.db, t.src.Name)); err != nil {
			return err
		}
		if req.ResetSequence {
			if err := destination.Truncate(ctx, tx, t.dst); err != nil {
				return err
			}
			if err := s.mappings.Clear(ctx, tx, t.db, t.src.Name); err != nil {
				return err
			}
			if _, err := s.sequences.ResetOne(ctx, tx, t.dst.Name); err != nil {
				return err
			}
		} else {
			empty, err := destination.IsEmpty(ctx, tx, t.dst)
			if err != nil {
				return err
			}
			if empty {
				if _, err := s.sequences.ResetOne(ctx, tx, t.dst.Name); err != nil {
					return err
				}
			}
		}
		if err := s.mappings.EnsureTable(ctx, tx, t.db, t.src.Name); err != nil {
			return err
		}

		out, err := s.translate(ctx, tx, t, row, forInsert, misses)
		if err != nil {
			return err
		}
		inserted, err := destination.Insert(ctx, tx, t.dst, out)
		if err != nil {
			return err
		}
		if newKey, err = t.newKey(inserted); err != nil {
			return err
		}
		return s.mappings.Upsert(ctx, tx, t.db, t.src.Name, oldKey, newKey)
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("row transferred",
		"source_db", t.db,
		"table", t.src.Name,
		"old_key", oldKey,
		"new_key", newKey,
		"reset", req.ResetSequence,
		"unresolved", len(misses.columns),
	)
	s.audit(ctx, audit.Event{
		Action:   audit.ActionTransfer,
		SourceDB: t.db,
		Table:    t.src.Name,
		OldKey:   oldKey,
		NewKey:   newKey,
		Payload:  map[string]any{"reset_sequence": req.ResetSequence, "unresolved_columns": misses.columns},
	})
	return Result{
		SourceDB:   t.db,
		Table:      t.src.Name,
		OldKey:     oldKey,
		NewKey:     newKey,
		Unresolved: misses.columns,
		Message:    fmt.Sprintf("%s %s transferred as %s", t.src.Name, oldKey, newKey),
	}, nil
}

// Update re-reads a transferred source row and overwrites its destination
// copy. The mapping is never changed.
func (s *Service) Update(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := s.run(ctx, "update", requestAttrs(req.SourceDB, req.Table, req.RowKey), func(ctx context.Context) error {
		t, err := s.target(ctx, req)
		if err != nil {
			return err
		}
		res, err = s.update(ctx, t, req.RowKey)
		if err != nil {
			return err
		}
		s.audit(ctx, audit.Event{Action: audit.ActionUpdate, SourceDB: t.db, Table: t.src.Name, OldKey: res.OldKey, NewKey: res.NewKey})
		return nil
	})
	return res, err
}

func (s *Service) update(ctx context.Context, t target, rowKey string) (Result, error) {
	key, err := record.ParseKey(rowKey, t.keyCols)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	row, err := s.source.FetchRow(ctx, t.src, key)
	if err != nil {
		return Result{}, err
	}
	oldKey, err := record.KeyString(row, t.keyCols)
	if err != nil {
		return Result{}, err
	}

	misses := &missLog{metrics: s.metrics}
	var newKey string
	err = pgdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgdb.LockXact(ctx, tx, pairLock(t.db, t.src.Name)); err != nil {
			return err
		}
		var found bool
		newKey, found, err = s.mappings.Lookup(ctx, tx, t.db, t.src.Name, oldKey)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s %s", ErrNotMigrated, t.src.Name, oldKey)
		}
		keyCols, keyVals, err := t.destKey(newKey)
		if err != nil {
			return err
		}
		out, err := s.translate(ctx, tx, t, row, forUpdate, misses)
		if err != nil {
			return err
		}
		// a table of key columns only has nothing to set, so the row is looked up instead
		var present bool
		if out.Len() == 0 {
			present, err = destination.Exists(ctx, tx, t.dst, keyCols, keyVals)
		} else {
			var n int64
			n, err = destination.Update(ctx, tx, t.dst, out, keyCols, keyVals)
			present = n > 0
		}
		if err != nil {
			return err
		}
		if !present {
			return fmt.Errorf("%w: destination row %s of %s no longer exists", ErrNotMigrated, newKey, t.dst.Name)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("row updated", "source_db", t.db, "table", t.src.Name, "old_key", oldKey, "new_key", newKey)
	return Result{
		SourceDB:   t.db,
		Table:      t.src.Name,
		OldKey:     oldKey,
		NewKey:     newKey,
		Unresolved: misses.columns,
		Message:    fmt.Sprintf("%s %s updated in destination row %s", t.src.Name, oldKey, newKey),
	}, nil
}

// Edit writes values into the source row and then propagates the row to the
// destination. The two stores cannot share a transaction; each step is
// recorded in the edit intent log so a half-applied edit stays visible.
func (s *Service) Edit(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := s.run(ctx, "edit", requestAttrs(req.SourceDB, req.Table, req.RowKey), func(ctx context.Context) error {
		t, err := s.target(ctx, req)
		if err != nil {
			return err
		}
		key, err := record.ParseKey(req.RowKey, t.keyCols)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if key.Partial {
			return fmt.Errorf("%w: edit needs the full key of %s", ErrInvalidRequest, t.src.Name)
		}
		values, err := editRow(t, req.Values)
		if err != nil {
			return err
		}
		row, err := s.source.FetchRow(ctx, t.src, key)
		if err != nil {
			return err
		}
		oldKey, err := record.KeyString(row, t.keyCols)
		if err != nil {
			return err
		}
		_, found, err := s.mappings.Lookup(ctx, s.pool, t.db, t.src.Name, oldKey)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s %s", ErrNotMigrated, t.src.Name, oldKey)
		}

		id, err := intent.Begin(ctx, s.pool, t.db, t.src.Name, oldKey, req.Values)
		if err != nil {
			return err
		}
		if _, err := s.source.UpdateRow(ctx, t.src, key, values); err != nil {
			s.finishIntent(ctx, id, intent.StatusSourceFailed, err)
			return err
		}
		res, err = s.update(ctx, t, oldKey)
		if err != nil {
			s.finishIntent(ctx, id, intent.StatusDestinationFailed, err)
			return err
		}
		s.finishIntent(ctx, id, intent.StatusApplied, nil)
		res.Message = fmt.Sprintf("%s %s edited in source and destination", t.src.Name, res.OldKey)
		s.audit(ctx, audit.Event{
			Action:   audit.ActionEdit,
			SourceDB: t.db,
			Table:    t.src.Name,
			OldKey:   res.OldKey,
			NewKey:   res.NewKey,
			Payload:  map[string]any{"intent_id": id.String(), "columns": values.Columns},
		})
		return nil
	})
	return res, err
}

// Delete removes the destination copy of a transferred row. The mapping entry
// is kept, so the source key stays listed as transferred.
func (s *Service) Delete(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := s.run(ctx, "delete", requestAttrs(req.SourceDB, req.Table, req.RowKey), func(ctx context.Context) error {
		t, err := s.target(ctx, req)
		if err != nil {
			return err
		}
		key, err := record.ParseKey(req.RowKey, t.keyCols)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		oldKey := key.String()
		if key.Partial {
			row, err := s.source.FetchRow(ctx, t.src, key)
			if err != nil {
				return err
			}
			if oldKey, err = record.KeyString(row, t.keyCols); err != nil {
				return err
			}
		}

		var newKey string
		err = pgdb.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			if err := pgdb.LockXact(ctx, tx, pairLock(t.db, t.src.Name)); err != nil {
				return err
			}
			var found bool
			newKey, found, err = s.mappings.Lookup(ctx, tx, t.db, t.src.Name, oldKey)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s %s", ErrNotMigrated, t.src.Name, oldKey)
			}
			keyCols, keyVals, err := t.destKey(newKey)
			if err != nil {
				return err
			}
			n, err := destination.Delete(ctx, tx, t.dst, keyCols, keyVals)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: destination row %s of %s is already gone", ErrNotFound, newKey, t.dst.Name)
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.logger.Info("row deleted", "source_db", t.db, "table", t.src.Name, "old_key", oldKey, "new_key", newKey)
		s.audit(ctx, audit.Event{Action: audit.ActionDelete, SourceDB: t.db, Table: t.src.Name, OldKey: oldKey, NewKey: newKey})
		res = Result{
			SourceDB: t.db,
			Table:    t.src.Name,
			OldKey:   oldKey,
			NewKey:   newKey,
			Message:  fmt.Sprintf("destination row %s of %s deleted", newKey, t.dst.Name),
		}
		return nil
	})
	return res, err
}

// audit failures never fail the operation that already committed.
func (s *Service) audit(ctx context.Context, ev audit.Event) {
	_, _ = audit.LogEvent(context.WithoutCancel(ctx), s.pool, s.logger, ev)
}

func (s *Service) finishIntent(ctx context.Context, id uuid.UUID, status intent.Status, cause error) {
	if err := intent.Finish(context.WithoutCancel(ctx), s.pool, id, status, cause); err != nil {
		s.logger.Error("edit intent not finished", "intent_id", id, "status", string(status), "error", err)
	}
}
