package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fiche-cuisine/internal/database"
	"github.com/iliyamo/fiche-cuisine/internal/model"
)

// SettingRepo stores key/value settings. Writes are last-write-wins.
type SettingRepo struct {
	db *sqlx.DB
}

// NewSettingRepo returns a new SettingRepo bound to the given database.
func NewSettingRepo(db *sqlx.DB) *SettingRepo { return &SettingRepo{db: db} }

// Get returns the value stored under key or ErrNotFound.
func (r *SettingRepo) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.GetContext(ctx, &v, r.db.Rebind(`SELECT setting_value FROM settings WHERE setting_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

// Set stores value under key, replacing any previous value.
func (r *SettingRepo) Set(ctx context.Context, key, value string) error {
	return database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return setTx(ctx, tx, key, value)
	})
}

func setTx(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM settings WHERE setting_key = ?`), key); err != nil {
		return err
	}
	if n > 0 {
		_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE settings SET setting_value = ? WHERE setting_key = ?`), value, key)
		return err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)`), key, value)
	return err
}

// Credentials reads the Zenchef credentials. Missing keys come back empty.
func (r *SettingRepo) Credentials(ctx context.Context) (model.ZenchefCredentials, error) {
	var creds model.ZenchefCredentials
	var rows []model.Setting
	query, args, err := sqlx.In(`SELECT setting_key, setting_value FROM settings WHERE setting_key IN (?)`,
		[]string{model.SettingZenchefToken, model.SettingZenchefRestaurantID})
	if err != nil {
		return creds, err
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return creds, err
	}
	for _, s := range rows {
		switch s.Key {
		case model.SettingZenchefToken:
			creds.APIToken = s.Value
		case model.SettingZenchefRestaurantID:
			creds.RestaurantID = s.Value
		}
	}
	return creds, nil
}

// SetCredentials updates the credentials that are non-nil, atomically.
func (r *SettingRepo) SetCredentials(ctx context.Context, token, restaurantID *string) error {
	return database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if token != nil {
			if err := setTx(ctx, tx, model.SettingZenchefToken, *token); err != nil {
				return err
			}
		}
		if restaurantID != nil {
			if err := setTx(ctx, tx, model.SettingZenchefRestaurantID, *restaurantID); err != nil {
				return err
			}
		}
		return nil
	})
}
