package library

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-library/middleware/jwtware"
	"github.com/goliatone/go-router"
)

// LoginPayload accepts the OAuth2 password form (username holds the email)
// as well as a JSON body with either username or email.
type LoginPayload struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// GetIdentifier returns the email or username used to log in
func (p LoginPayload) GetIdentifier() string {
	if id := strings.TrimSpace(p.Username); id != "" {
		return id
	}
	return strings.TrimSpace(p.Email)
}

func (p LoginPayload) GetPassword() string {
	return p.Password
}

// TokenResponse is returned by login and refresh
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type ControllerRoutes struct {
	Auth  string
	Admin string
	Books string
}

type Controller struct {
	Debug    bool
	Logger   Logger
	Config   Config
	Repo     RepositoryManager
	Routes   *ControllerRoutes
	Auther   *Auther
	Registry *RegisterUserHandler
	Catalog  *Catalog
	Ledger   *Ledger
	Activity ActivitySink
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) ControllerOption {
	return func(c *Controller) *Controller {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

// WithControllerTokenService overrides the token service built from config
func WithControllerTokenService(ts TokenService) ControllerOption {
	return func(c *Controller) *Controller {
		c.Auther.WithTokenService(ts)
		return c
	}
}

// WithControllerLedger replaces the default ledger, e.g. to inject a clock
func WithControllerLedger(l *Ledger) ControllerOption {
	return func(c *Controller) *Controller {
		if l != nil {
			c.Ledger = l
		}
		return c
	}
}

// NewController builds every service on top of repo and cfg
func NewController(repo RepositoryManager, cfg Config, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:   defLogger{},
		Config:   cfg,
		Repo:     repo,
		Activity: noopActivitySink{},
		Routes: &ControllerRoutes{
			Auth:  "/auth",
			Admin: "/admin",
			Books: "/books",
		},
		Auther:   NewAuthenticator(NewUserProvider(repo.Users()), cfg),
		Registry: NewRegisterUserHandler(repo),
		Catalog:  NewCatalog(repo),
		Ledger:   NewLedger(repo),
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	c.Auther.WithLogger(c.Logger).WithActivitySink(c.Activity)
	c.Registry.WithLogger(c.Logger).WithActivitySink(c.Activity)
	c.Catalog.WithLogger(c.Logger).WithActivitySink(c.Activity)
	c.Ledger.WithLogger(c.Logger).WithActivitySink(c.Activity)

	return c
}

// RegisterRoutes mounts every controller route on app
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	protected := ProtectedRoute(c.Auther.TokenService(), c.Config)
	loadUser := LoadUser(c.Auther, c.Config.GetContextKey())

	app.Get("/", c.Welcome).SetName("welcome")
	app.Get("/health", c.Health).SetName("health")

	auth := app.Group(c.Routes.Auth)
	auth.Post("/signup", c.Signup).SetName("auth.signup")
	auth.Post("/login", c.Login).SetName("auth.login")
	auth.Get("/me", c.Me, protected, loadUser).SetName("auth.me")
	auth.Post("/refresh", c.Refresh, protected).SetName("auth.refresh")

	admin := app.Group(c.Routes.Admin)
	admin.Use(protected, loadUser, AdminOnly())
	admin.Post("/books", c.CreateBook).SetName("admin.books.create")
	admin.Get("/books", c.ListBooks).SetName("admin.books.list")
	admin.Get("/books/:id", c.GetBook).SetName("admin.books.get")
	admin.Put("/books/:id", c.UpdateBook).SetName("admin.books.update")
	admin.Delete("/books/:id", c.DeleteBook).SetName("admin.books.delete")

	books := app.Group(c.Routes.Books)
	books.Get("/", c.BrowseBooks).SetName("books.browse")
	books.Get("/history", c.History, protected, loadUser).SetName("books.history")
	books.Post("/:id/borrow", c.BorrowBook, protected, loadUser).SetName("books.borrow")
	books.Post("/:id/return", c.ReturnBook, protected, loadUser).SetName("books.return")
}

func (c *Controller) Welcome(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Welcome to the Library Management System"})
}

func (c *Controller) Health(ctx router.Context) error {
	if err := c.Repo.DB().PingContext(ctx.Context()); err != nil {
		return wrapInternal(err, "database unreachable")
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Controller) Signup(ctx router.Context) error {
	payload := RegisterUserMessage{}
	if err := ctx.Bind(&payload); err != nil {
		return NewBadInputError("Invalid request body")
	}

	user, err := c.Registry.Execute(ctx.Context(), payload)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) Login(ctx router.Context) error {
	payload := LoginPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return NewBadInputError("Invalid request body")
	}

	if payload.GetIdentifier() == "" || payload.GetPassword() == "" {
		return NewBadInputError("username and password are required")
	}

	token, err := c.Auther.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (c *Controller) Me(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return ErrNotAuthenticated
	}
	return ctx.JSON(http.StatusOK, user)
}

func (c *Controller) Refresh(ctx router.Context) error {
	extractors := jwtware.GetExtractors(c.Config.GetTokenLookup(), c.Config.GetAuthScheme())
	raw, err := jwtware.ExtractRawTokenFromContext(ctx, extractors)
	if err != nil {
		return ErrNotAuthenticated
	}

	token, err := c.Auther.Refresh(ctx.Context(), raw)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (c *Controller) CreateBook(ctx router.Context) error {
	payload := BookPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return NewBadInputError("Invalid request body")
	}

	book, err := c.Catalog.Create(ctx.Context(), payload)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, book)
}

func (c *Controller) UpdateBook(ctx router.Context) error {
	id, err := bookIDParam(ctx)
	if err != nil {
		return err
	}

	payload := BookPayload{}
	if err := ctx.Bind(&payload); err != nil {
		return NewBadInputError("Invalid request body")
	}

	book, err := c.Catalog.Update(ctx.Context(), id, payload)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, book)
}

func (c *Controller) DeleteBook(ctx router.Context) error {
	id, err := bookIDParam(ctx)
	if err != nil {
		return err
	}

	if err := c.Catalog.Delete(ctx.Context(), id); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Book deleted successfully"})
}

func (c *Controller) ListBooks(ctx router.Context) error {
	books, err := c.Catalog.List(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, books)
}

func (c *Controller) GetBook(ctx router.Context) error {
	id, err := bookIDParam(ctx)
	if err != nil {
		return err
	}

	book, err := c.Catalog.Get(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, book)
}

func (c *Controller) BrowseBooks(ctx router.Context) error {
	books, err := c.Catalog.Browse(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, books)
}

func (c *Controller) BorrowBook(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	id, err := bookIDParam(ctx)
	if err != nil {
		return err
	}

	borrow, err := c.Ledger.Borrow(ctx.Context(), id, user.ID)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, borrow)
}

func (c *Controller) ReturnBook(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	id, err := bookIDParam(ctx)
	if err != nil {
		return err
	}

	if _, err := c.Ledger.Return(ctx.Context(), id, user.ID); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Book returned successfully"})
}

func (c *Controller) History(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	borrows, err := c.Ledger.History(ctx.Context(), user.ID)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, borrows)
}

// bookIDParam only rejects ids that are not integers. Ids that match no
// book, including zero and negatives, reach the services and come back as
// ErrBookNotFound.
func bookIDParam(ctx router.Context) (int64, error) {
	raw := ctx.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, NewBadInputError("Invalid book id", map[string]any{"id": raw})
	}
	return id, nil
}
