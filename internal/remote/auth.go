package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/schema"
)

const collectionProfile = "profile"

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email        string
	Password     string
	Name         string
	PhoneNumber  string
	LicensePlate *string
}

// Validate checks the account fields before anything is sent.
func (in RegisterInput) Validate() error {
	if !strings.Contains(in.Email, "@") {
		return fmt.Errorf("email %q is not valid", in.Email)
	}
	if len(in.Password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Register creates an account and its profile document, then signs in.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*schema.UserProfile, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	cost := c.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	profile := &schema.UserProfile{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(in.Email),
		Name:         in.Name,
		PhoneNumber:  in.PhoneNumber,
		LicensePlate: in.LicensePlate,
	}
	body, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}

	var token string
	err = c.call(ctx, "register", func(ctx context.Context) error {
		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM accounts WHERE email = ?", profile.Email,
		).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return errs.Transport(http.StatusConflict, "email already registered")
		}

		now := c.now()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO accounts (email, user_id, password_hash, created_at) VALUES (?, ?, ?, ?)",
			profile.Email, profile.ID, string(hash), now.Format(timeFormat),
		); err != nil {
			return err
		}
		if err := putDocument(ctx, tx, profile.ID, collectionProfile, profile.ID, body, 0, now); err != nil {
			return err
		}
		if token, err = c.issueSession(ctx, tx, profile.ID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	c.SetSession(token, profile.ID)
	c.logger.Printf("Registered user %s", profile.ID)
	return profile, nil
}

// Login verifies credentials and starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (*schema.UserProfile, error) {
	var profile schema.UserProfile
	var token string

	err := c.call(ctx, "log in", func(ctx context.Context) error {
		var userID, hash string
		err := c.conn.QueryRowContext(ctx,
			"SELECT user_id, password_hash FROM accounts WHERE email = ?", normalizeEmail(email),
		).Scan(&userID, &hash)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}

		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			return errs.ErrInvalidCredentials
		}

		body, err := getDocument(ctx, c.conn, userID, collectionProfile, userID)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return errs.E(errs.KindMalformed, "profile document is not valid JSON", err)
		}

		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if token, err = c.issueSession(ctx, tx, userID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	c.SetSession(token, profile.ID)
	return &profile, nil
}

// Logout revokes the current session. The local token is dropped even when
// the backend cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	token, _ := c.Session()
	c.SetSession("", "")
	if token == "" {
		return nil
	}

	return c.call(ctx, "log out", func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
		return err
	})
}

// FetchProfile returns the profile document of the signed-in user.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*schema.UserProfile, error) {
	var profile schema.UserProfile
	err := c.call(ctx, "fetch profile", func(ctx context.Context) error {
		if err := c.requireSession(ctx, userID); err != nil {
			return err
		}
		body, err := getDocument(ctx, c.conn, userID, collectionProfile, userID)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return errs.E(errs.KindMalformed, "profile document is not valid JSON", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) issueSession(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	token := uuid.NewString()
	expires := c.now().Add(c.cfg.SessionTTL)
	_, err := tx.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expires.Format(timeFormat),
	)
	return token, err
}

// requireSession checks that the current token is live and belongs to userID.
func (c *Client) requireSession(ctx context.Context, userID string) error {
	token, sessionUser := c.Session()
	if token == "" {
		return errs.ErrNotLoggedIn
	}
	if sessionUser != userID {
		return errs.E(errs.KindUnauthorized, fmt.Sprintf("session does not belong to user %s", userID), nil)
	}

	var owner, expires string
	err := c.conn.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM sessions WHERE token = ?", token,
	).Scan(&owner, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.E(errs.KindUnauthorized, "session revoked", nil)
	}
	if err != nil {
		return err
	}

	exp, err := time.Parse(timeFormat, expires)
	if err != nil {
		return errs.E(errs.KindMalformed, "session expiry is not a timestamp", err)
	}
	if owner != userID || !c.now().Before(exp) {
		return errs.E(errs.KindUnauthorized, "session expired", nil)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
