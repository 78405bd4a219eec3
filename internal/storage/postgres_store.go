package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/carpool-engine/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

const reservationColumns = `id, user_id, user_gender, role, mode,
	origin_lat, origin_lon, dest_lat, dest_lon, origin_addr, dest_addr,
	window_start, window_end, pref_gender, pref_vehicle, capacity,
	status, group_id, hold_id, version, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *models.Reservation) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO reservations(`+reservationColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		r.ID, r.UserID, r.UserGender, r.Role, r.Mode,
		r.Origin.Lat, r.Origin.Lon, r.Destination.Lat, r.Destination.Lon, r.OriginAddr, r.DestAddr,
		r.Window.Start, r.Window.End, string(r.Preferences.Gender), r.Preferences.VehicleType, r.Capacity,
		r.Status, r.GroupID, r.HoldID, r.Version, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Reservation, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id)
	return scanReservation(row)
}

func (p *PostgresStore) OpenCandidates(ctx context.Context, role models.Role, w models.TimeWindow) ([]models.Reservation, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE role=$1 AND status='searching' AND window_end > $2 AND window_start < $3`,
		role, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (p *PostgresStore) ByGroup(ctx context.Context, groupID string) ([]models.Reservation, error) {
	if groupID == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE group_id=$1`, groupID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (p *PostgresStore) OpenForUser(ctx context.Context, userID, excludeID string) ([]models.Reservation, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE user_id=$1 AND id <> $2 AND status IN ('searching','matched')`, userID, excludeID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (p *PostgresStore) Transition(ctx context.Context, id string, version int64, from, to models.Status) error {
	clearRefs := to == models.StatusSearching || to == models.StatusCanceled
	res, err := p.db.ExecContext(ctx, `UPDATE reservations
		SET status=$1, version=version+1, updated_at=now(),
		    group_id = CASE WHEN $2 THEN '' ELSE group_id END,
		    hold_id  = CASE WHEN $2 THEN '' ELSE hold_id END
		WHERE id=$3 AND status=$4 AND version=$5`,
		to, clearRefs, id, from, version)
	if err != nil {
		return err
	}
	return oneRowOrConflict(ctx, p.db, res, id)
}

func (p *PostgresStore) MatchPair(ctx context.Context, driverID string, driverVersion int64, passengerID string, passengerVersion int64, groupID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, side := range []struct {
		id      string
		version int64
	}{{driverID, driverVersion}, {passengerID, passengerVersion}} {
		res, err := tx.ExecContext(ctx, `UPDATE reservations
			SET status='matched', group_id=$1, version=version+1, updated_at=now()
			WHERE id=$2 AND status='searching' AND version=$3`,
			groupID, side.id, side.version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConflict
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) SetHold(ctx context.Context, id, holdID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE reservations
		SET hold_id=$1, version=version+1, updated_at=now() WHERE id=$2`, holdID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Reopen(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE reservations
		SET status='searching', group_id='', hold_id='', version=version+1, updated_at=now()
		WHERE id=$1 AND status='matched'`, id)
	return err
}

func (p *PostgresStore) ForceCancel(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE reservations
		SET status='canceled', group_id='', hold_id='', version=version+1, updated_at=now()
		WHERE id=$1 AND status NOT IN ('completed','canceled')`, id)
	return err
}

// oneRowOrConflict distinguishes a missing row from a lost CAS race.
func oneRowOrConflict(ctx context.Context, db *sql.DB, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reservations WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var prefGender string
	err := row.Scan(
		&r.ID, &r.UserID, &r.UserGender, &r.Role, &r.Mode,
		&r.Origin.Lat, &r.Origin.Lon, &r.Destination.Lat, &r.Destination.Lon, &r.OriginAddr, &r.DestAddr,
		&r.Window.Start, &r.Window.End, &prefGender, &r.Preferences.VehicleType, &r.Capacity,
		&r.Status, &r.GroupID, &r.HoldID, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	r.Preferences.Gender = models.GenderPreference(prefGender)
	return &r, nil
}

func collectReservations(rows *sql.Rows) ([]models.Reservation, error) {
	defer rows.Close()
	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
