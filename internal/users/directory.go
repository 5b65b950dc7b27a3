package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/gogotex/membership/internal/models"
	"github.com/gogotex/membership/internal/store"
)

// Paging bounds for directory listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one page of a user listing.
type Page struct {
	Users        []*models.User `json:"users"`
	TotalRecords int64          `json:"totalRecords"`
	PageIndex    int            `json:"pageIndex"`
	PageSize     int            `json:"pageSize"`
}

// Directory serves read-only user lookups.
type Directory struct {
	store  store.Store
	policy Policy
}

func NewDirectory(st store.Store, policy Policy) *Directory {
	return &Directory{store: st, policy: policy}
}

func (d *Directory) app(app string) string {
	if app == "" {
		return d.policy.ApplicationName()
	}
	return app
}

func (d *Directory) withSession(ctx context.Context, fn func(store.Session) error) error {
	sess, err := d.store.OpenSession(ctx, store.SessionOptions{})
	if err != nil {
		return fmt.Errorf("%w: open session: %v", ErrProviderError, err)
	}
	defer sess.Close(ctx)
	if err := fn(sess); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	return nil
}

func (d *Directory) find(ctx context.Context, q store.UserQuery) (*models.User, error) {
	var u *models.User
	err := d.withSession(ctx, func(sess store.Session) error {
		var err error
		u, err = sess.FindUser(ctx, q)
		return err
	})
	return u, err
}

// GetUser returns the user named username or ErrUserNotFound.
func (d *Directory) GetUser(ctx context.Context, app, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	u, err := d.find(ctx, store.UserQuery{App: d.app(app), Field: store.FieldUsername, Value: username, Mode: store.ReadFresh})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return u, nil
}

// GetUserByID returns the user with the given store id or ErrUserNotFound.
func (d *Directory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u *models.User
	err := d.withSession(ctx, func(sess store.Session) error {
		var err error
		u, err = sess.LoadUser(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: id %s", ErrUserNotFound, id)
	}
	return u, nil
}

// GetUserNameByEmail returns the username owning email, or "" when nobody does.
func (d *Directory) GetUserNameByEmail(ctx context.Context, app, email string) (string, error) {
	u, err := d.find(ctx, store.UserQuery{App: d.app(app), Field: store.FieldEmail, Value: strings.TrimSpace(email)})
	if err != nil || u == nil {
		return "", err
	}
	return u.Username, nil
}

func (d *Directory) FindUsersByName(ctx context.Context, app, match string, pageIndex, pageSize int) (*Page, error) {
	return d.list(ctx, store.UserSearch{App: d.app(app), UsernameContains: match}, pageIndex, pageSize)
}

func (d *Directory) FindUsersByEmail(ctx context.Context, app, match string, pageIndex, pageSize int) (*Page, error) {
	return d.list(ctx, store.UserSearch{App: d.app(app), EmailContains: match}, pageIndex, pageSize)
}

func (d *Directory) GetAllUsers(ctx context.Context, app string, pageIndex, pageSize int) (*Page, error) {
	return d.list(ctx, store.UserSearch{App: d.app(app)}, pageIndex, pageSize)
}

func (d *Directory) list(ctx context.Context, q store.UserSearch, pageIndex, pageSize int) (*Page, error) {
	if pageIndex < 0 {
		pageIndex = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	q.Skip = int64(pageIndex) * int64(pageSize)
	q.Limit = int64(pageSize)

	page := &Page{PageIndex: pageIndex, PageSize: pageSize}
	err := d.withSession(ctx, func(sess store.Session) error {
		var err error
		page.Users, page.TotalRecords, err = sess.QueryUsers(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	if page.Users == nil {
		page.Users = []*models.User{}
	}
	return page, nil
}
