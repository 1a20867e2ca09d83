package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mcuplan/errcode"
	"mcuplan/types"
)

const timeLayout = time.RFC3339Nano

// SelectionRepo keeps the single selected MCU, stored as its full JSON spec.
type SelectionRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewSelectionRepo(db *DB, log zerolog.Logger) *SelectionRepo {
	return &SelectionRepo{db: db.conn, log: log.With().Str("repo", "selection").Logger()}
}

func (r *SelectionRepo) Save(ctx context.Context, sel types.Selection) error {
	spec, err := json.Marshal(sel.MCU)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO selection (id, mcu_id, spec, selected_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET mcu_id = excluded.mcu_id, spec = excluded.spec, selected_at = excluded.selected_at`,
		sel.MCU.ID, string(spec), sel.SelectedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	r.log.Debug().Str("mcu", sel.MCU.ID).Msg("Selection saved")
	return nil
}

// Load returns errcode.NotFound when nothing has been selected. A stored
// spec that no longer decodes is dropped and reported as NotFound.
func (r *SelectionRepo) Load(ctx context.Context) (types.Selection, error) {
	var spec, at string
	err := r.db.QueryRowContext(ctx, `SELECT spec, selected_at FROM selection WHERE id = 1`).Scan(&spec, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Selection{}, errcode.NotFound
	}
	if err != nil {
		return types.Selection{}, fmt.Errorf("load selection: %w", err)
	}

	var sel types.Selection
	if err := json.Unmarshal([]byte(spec), &sel.MCU); err != nil || sel.MCU.ID == "" {
		r.log.Warn().Err(err).Msg("Discarding unreadable stored selection")
		_ = r.Clear(ctx)
		return types.Selection{}, errcode.NotFound
	}
	sel.SelectedAt, _ = time.Parse(timeLayout, at)
	return sel, nil
}

func (r *SelectionRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM selection`)
	return err
}

// ConfigRepo stores one JSON configuration per MCU.
type ConfigRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewConfigRepo(db *DB, log zerolog.Logger) *ConfigRepo {
	return &ConfigRepo{db: db.conn, log: log.With().Str("repo", "configs").Logger()}
}

func (r *ConfigRepo) Save(ctx context.Context, cfg *types.Configuration) error {
	if cfg == nil || cfg.MCUID == "" {
		return errcode.Wrap(errcode.InvalidParams, "save config", "missing mcu id", nil)
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	at := cfg.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO configs (mcu_id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(mcu_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		cfg.MCUID, string(body), at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save config %s: %w", cfg.MCUID, err)
	}
	return nil
}

// Load returns errcode.NotFound when mcuID has no stored configuration.
func (r *ConfigRepo) Load(ctx context.Context, mcuID string) (*types.Configuration, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM configs WHERE mcu_id = ?`, mcuID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errcode.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", mcuID, err)
	}
	return decodeConfig(mcuID, body)
}

func (r *ConfigRepo) Delete(ctx context.Context, mcuID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM configs WHERE mcu_id = ?`, mcuID)
	if err != nil {
		return false, fmt.Errorf("delete config %s: %w", mcuID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns every stored configuration ordered by MCU id. Rows that fail
// to decode are logged and skipped.
func (r *ConfigRepo) List(ctx context.Context) ([]*types.Configuration, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT mcu_id, body FROM configs ORDER BY mcu_id`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var out []*types.Configuration
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("list configs: %w", err)
		}
		cfg, err := decodeConfig(id, body)
		if err != nil {
			r.log.Warn().Err(err).Str("mcu", id).Msg("Skipping unreadable config")
			continue
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func decodeConfig(mcuID, body string) (*types.Configuration, error) {
	cfg := types.NewConfiguration(mcuID)
	if err := json.Unmarshal([]byte(body), cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidPayload, "decode config", mcuID, err)
	}
	cfg.MCUID = mcuID
	if cfg.Peripherals == nil {
		cfg.Peripherals = map[types.PeripheralType]map[string]types.Fields{}
	}
	return cfg, nil
}
