package softtoken

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/openclave/reclaim/pkg/idx"
	"github.com/openclave/reclaim/pkg/softtoken/migrations"
)

// ErrNotFound reports a credential lookup that matched nothing.
var ErrNotFound = errors.New("softtoken: credential not found")

// Credential is one resident key held by the vault. The private key is only
// ever stored sealed; plaintext key material lives in memory for the duration
// of a ceremony.
type Credential struct {
	ID                  string
	CredentialID        []byte
	RPID                string
	UserID              []byte
	UserName            string
	PrivateKeyEncrypted []byte
	SignCount           uint32
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Vault is the sqlite-backed credential store of the software authenticator.
type Vault struct {
	db *sql.DB
}

// OpenVault opens (creating if needed) the credential database at dsn and
// applies pending migrations. Use ":memory:" for an ephemeral vault.
func OpenVault(dsn string) (*Vault, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	// An in-memory database exists per connection; keep a single one so
	// every statement sees the same vault.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	v := &Vault{db: db}
	if err := v.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate vault: %w", err)
	}
	return v, nil
}

func (v *Vault) applyMigrations() error {
	driver, err := sqlitemigrate.WithInstance(v.db, &sqlitemigrate.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying database.
func (v *Vault) Close() error { return v.db.Close() }

// salt returns the vault's key-derivation salt, generating and persisting it
// on first use.
func (v *Vault) salt(ctx context.Context, generate func() ([]byte, error)) ([]byte, error) {
	var value []byte
	err := v.db.QueryRowContext(ctx,
		`SELECT value FROM vault_meta WHERE key = 'kdf_salt'`,
	).Scan(&value)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	value, err = generate()
	if err != nil {
		return nil, err
	}
	if _, err := v.db.ExecContext(ctx,
		`INSERT INTO vault_meta (key, value) VALUES ('kdf_salt', ?)`, value,
	); err != nil {
		return nil, err
	}
	return value, nil
}

// Insert stores a freshly minted credential.
func (v *Vault) Insert(ctx context.Context, c Credential) error {
	if c.ID == "" {
		c.ID = idx.New().String()
	}
	now := time.Now().UTC()

	_, err := v.db.ExecContext(ctx, `
		INSERT INTO credentials
			(id, credential_id, rp_id, user_id, user_name,
			 private_key_encrypted, sign_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CredentialID, c.RPID, c.UserID, c.UserName,
		c.PrivateKeyEncrypted, c.SignCount, now, now,
	)
	return err
}

// ByRP returns every credential scoped to the given relying party, oldest
// first.
func (v *Vault) ByRP(ctx context.Context, rpID string) ([]Credential, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT id, credential_id, rp_id, user_id, user_name,
		       private_key_encrypted, sign_count, created_at, updated_at
		FROM credentials WHERE rp_id = ? ORDER BY created_at`,
		rpID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(
			&c.ID, &c.CredentialID, &c.RPID, &c.UserID, &c.UserName,
			&c.PrivateKeyEncrypted, &c.SignCount, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ByCredentialID returns the credential with the given wire id, or
// ErrNotFound.
func (v *Vault) ByCredentialID(ctx context.Context, credentialID []byte) (Credential, error) {
	var c Credential
	err := v.db.QueryRowContext(ctx, `
		SELECT id, credential_id, rp_id, user_id, user_name,
		       private_key_encrypted, sign_count, created_at, updated_at
		FROM credentials WHERE credential_id = ?`,
		credentialID,
	).Scan(
		&c.ID, &c.CredentialID, &c.RPID, &c.UserID, &c.UserName,
		&c.PrivateKeyEncrypted, &c.SignCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}
	return c, nil
}

// SetSignCount persists a bumped signature counter.
func (v *Vault) SetSignCount(ctx context.Context, id string, count uint32) error {
	_, err := v.db.ExecContext(ctx, `
		UPDATE credentials SET sign_count = ?, updated_at = ? WHERE id = ?`,
		count, time.Now().UTC(), id,
	)
	return err
}
