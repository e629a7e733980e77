package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
	"github.com/usagelab/mobile-usage-api/internal/domain/repository"
)

// Postgres SQLSTATE for "insert or update violates foreign key constraint".
const codeForeignKeyViolation = "23503"

const defaultAcquireTimeout = 5 * time.Second

// UserRepository persists user aggregates across the four tables. Every
// write runs as one transaction on an explicitly acquired pooled
// connection; no statement group is ever left partially applied.
type UserRepository struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

func NewUserRepository(pool *pgxpool.Pool, acquireTimeout time.Duration) *UserRepository {
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	return &UserRepository{pool: pool, acquireTimeout: acquireTimeout}
}

// classify maps driver-level failures onto the repository error taxonomy.
// FK violations are matched by SQLSTATE, never by message text.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return repository.ErrReferentialIntegrity
	}
	return err
}

// acquire checks a connection out of the pool, waiting at most
// acquireTimeout. The timeout bounds only the checkout, not the statements
// run on the connection afterwards.
func (r *UserRepository) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()
	conn, err := r.pool.Acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, repository.ErrPoolExhausted
		}
		return nil, err
	}
	return conn, nil
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (user_id, age, gender)
		VALUES ($1, $2, $3)
	`, u.UserID, u.Age, u.Gender); err != nil {
		return classify(err)
	}
	if err := insertChildren(ctx, tx, u); err != nil {
		return classify(err)
	}
	return tx.Commit(ctx)
}

// insertChildren writes every child row in the fixed devices, appusage,
// userbehavior order, filling store-generated ids as it goes.
func insertChildren(ctx context.Context, tx pgx.Tx, u *entity.User) error {
	for i := range u.Devices {
		d := &u.Devices[i]
		if err := tx.QueryRow(ctx, `
			INSERT INTO devices (user_id, device_model, operating_system, number_of_apps_installed)
			VALUES ($1, $2, $3, $4)
			RETURNING device_id
		`, u.UserID, d.DeviceModel, d.OperatingSystem, d.NumberOfAppsInstalled).Scan(&d.DeviceID); err != nil {
			return err
		}
	}
	for i := range u.AppUsage {
		a := &u.AppUsage[i]
		if err := tx.QueryRow(ctx, `
			INSERT INTO appusage (user_id, app_usage_time, screen_on_time, battery_drain, data_usage)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING app_usage_id
		`, u.UserID, a.AppUsageTime, a.ScreenOnTime, a.BatteryDrain, a.DataUsage).Scan(&a.AppUsageID); err != nil {
			return err
		}
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO userbehavior (user_id, user_behavior_class)
		VALUES ($1, $2)
		RETURNING behavior_id
	`, u.UserID, u.UserBehavior.UserBehaviorClass).Scan(&u.UserBehavior.BehaviorID); err != nil {
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID int) (*entity.User, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	u := &entity.User{
		Devices:  []entity.Device{},
		AppUsage: []entity.AppUsage{},
	}
	row := conn.QueryRow(ctx, `
		SELECT user_id, age, gender
		FROM users
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&u.UserID, &u.Age, &u.Gender); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	rows, err := conn.Query(ctx, `
		SELECT device_id, device_model, operating_system, number_of_apps_installed
		FROM devices
		WHERE user_id = $1
		ORDER BY device_id
	`, userID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var d entity.Device
		if err := rows.Scan(&d.DeviceID, &d.DeviceModel, &d.OperatingSystem, &d.NumberOfAppsInstalled); err != nil {
			rows.Close()
			return nil, err
		}
		u.Devices = append(u.Devices, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
		SELECT app_usage_id, app_usage_time, screen_on_time, battery_drain, data_usage
		FROM appusage
		WHERE user_id = $1
		ORDER BY app_usage_id
	`, userID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var a entity.AppUsage
		if err := rows.Scan(&a.AppUsageID, &a.AppUsageTime, &a.ScreenOnTime, &a.BatteryDrain, &a.DataUsage); err != nil {
			rows.Close()
			return nil, err
		}
		u.AppUsage = append(u.AppUsage, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Missing behavior row reads as class 0 so reconstruction stays total.
	row = conn.QueryRow(ctx, `
		SELECT behavior_id, user_behavior_class
		FROM userbehavior
		WHERE user_id = $1
		ORDER BY behavior_id
		LIMIT 1
	`, userID)
	if err := row.Scan(&u.UserBehavior.BehaviorID, &u.UserBehavior.UserBehaviorClass); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return u, nil
}

func (r *UserRepository) GetLatest(ctx context.Context) (*entity.User, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	var userID int
	err = conn.QueryRow(ctx, `
		SELECT user_id FROM users ORDER BY user_id DESC LIMIT 1
	`).Scan(&userID)
	conn.Release()
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return r.GetByID(ctx, userID)
}

// listQuery joins all three child relations onto users. The joins are outer
// so that a user missing any one relation still appears, matching
// single-subject visibility; NULL child columns mark join misses. Devices
// and appusage are joined independently on user_id, so the result fans out
// to D x U rows per user; the aggregate builder collapses that again.
const listQuery = `
	SELECT u.user_id, u.age, u.gender,
	       d.device_id, d.device_model, d.operating_system, d.number_of_apps_installed,
	       a.app_usage_id, a.app_usage_time, a.screen_on_time, a.battery_drain, a.data_usage,
	       b.behavior_id, b.user_behavior_class
	FROM users u
	LEFT JOIN devices d ON d.user_id = u.user_id
	LEFT JOIN appusage a ON a.user_id = u.user_id
	LEFT JOIN userbehavior b ON b.user_id = u.user_id
	ORDER BY u.user_id
`

func (r *UserRepository) List(ctx context.Context) ([]entity.User, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, listQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// The cursor streams; nothing is materialized beyond the aggregates
	// themselves. Any error discards all partial accumulation.
	b := newAggregateBuilder()
	for rows.Next() {
		var jr joinRow
		if err := rows.Scan(
			&jr.userID, &jr.age, &jr.gender,
			&jr.deviceID, &jr.deviceModel, &jr.deviceOS, &jr.deviceApps,
			&jr.appUsageID, &jr.appUsageTime, &jr.screenOnTime, &jr.batteryDrain, &jr.dataUsage,
			&jr.behaviorID, &jr.behaviorClass,
		); err != nil {
			return nil, err
		}
		b.add(jr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.result(), nil
}

// Update replaces the aggregate wholesale: scalar row overwritten, children
// reconciled by delete-and-reinsert inside the same transaction, so the
// stored child sets always equal the supplied ones afterwards.
func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := tx.Exec(ctx, `
		UPDATE users SET age = $1, gender = $2 WHERE user_id = $3
	`, u.Age, u.Gender, u.UserID)
	if err != nil {
		return classify(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	for _, stmt := range []string{
		`DELETE FROM devices WHERE user_id = $1`,
		`DELETE FROM appusage WHERE user_id = $1`,
		`DELETE FROM userbehavior WHERE user_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, u.UserID); err != nil {
			return classify(err)
		}
	}
	if err := insertChildren(ctx, tx, u); err != nil {
		return classify(err)
	}
	return tx.Commit(ctx)
}

// Delete removes the children first, then the user row, as one unit. No
// orphan child row survives.
func (r *UserRepository) Delete(ctx context.Context, userID int) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	if err := tx.QueryRow(ctx, `
		SELECT 1 FROM users WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM devices WHERE user_id = $1`,
		`DELETE FROM appusage WHERE user_id = $1`,
		`DELETE FROM userbehavior WHERE user_id = $1`,
		`DELETE FROM users WHERE user_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, userID); err != nil {
			return classify(err)
		}
	}
	return tx.Commit(ctx)
}

func (r *UserRepository) AddDevice(ctx context.Context, d *entity.Device) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	err = conn.QueryRow(ctx, `
		INSERT INTO devices (user_id, device_model, operating_system, number_of_apps_installed)
		VALUES ($1, $2, $3, $4)
		RETURNING device_id
	`, d.UserID, d.DeviceModel, d.OperatingSystem, d.NumberOfAppsInstalled).Scan(&d.DeviceID)
	return classify(err)
}

func (r *UserRepository) AddAppUsage(ctx context.Context, a *entity.AppUsage) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	err = conn.QueryRow(ctx, `
		INSERT INTO appusage (user_id, app_usage_time, screen_on_time, battery_drain, data_usage)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING app_usage_id
	`, a.UserID, a.AppUsageTime, a.ScreenOnTime, a.BatteryDrain, a.DataUsage).Scan(&a.AppUsageID)
	return classify(err)
}

func (r *UserRepository) AddBehavior(ctx context.Context, b *entity.UserBehavior) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	err = conn.QueryRow(ctx, `
		INSERT INTO userbehavior (user_id, user_behavior_class)
		VALUES ($1, $2)
		RETURNING behavior_id
	`, b.UserID, b.UserBehaviorClass).Scan(&b.BehaviorID)
	return classify(err)
}

func (r *UserRepository) ListDevices(ctx context.Context) ([]entity.Device, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT device_id, user_id, device_model, operating_system, number_of_apps_installed
		FROM devices
		ORDER BY device_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entity.Device{}
	for rows.Next() {
		var d entity.Device
		if err := rows.Scan(&d.DeviceID, &d.UserID, &d.DeviceModel, &d.OperatingSystem, &d.NumberOfAppsInstalled); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *UserRepository) ListAppUsage(ctx context.Context) ([]entity.AppUsage, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT app_usage_id, user_id, app_usage_time, screen_on_time, battery_drain, data_usage
		FROM appusage
		ORDER BY app_usage_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entity.AppUsage{}
	for rows.Next() {
		var a entity.AppUsage
		if err := rows.Scan(&a.AppUsageID, &a.UserID, &a.AppUsageTime, &a.ScreenOnTime, &a.BatteryDrain, &a.DataUsage); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *UserRepository) ListBehaviors(ctx context.Context) ([]entity.UserBehavior, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT behavior_id, user_id, user_behavior_class
		FROM userbehavior
		ORDER BY behavior_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entity.UserBehavior{}
	for rows.Next() {
		var b entity.UserBehavior
		if err := rows.Scan(&b.BehaviorID, &b.UserID, &b.UserBehaviorClass); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ repository.UserRepository = (*UserRepository)(nil)
