package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

// Dialect selects the relational service a NetworkedStore talks to.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

func ParseDialect(raw string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case DialectPostgres, "postgresql", "":
		return DialectPostgres, nil
	case DialectMySQL, "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unknown store dialect %q", raw)
	}
}

func (d Dialect) defaultPort() int {
	if d == DialectMySQL {
		return 3306
	}
	return 5432
}

// NetworkedStore keeps progression in a remote relational database. It never
// dials during construction; IsReachable and each operation connect on
// demand.
type NetworkedStore struct {
	dialect Dialect
	addr    string
	db      *gorm.DB
	pool    *Pool
	tbl     table
	log     *logger.Logger
}

var _ Backend = (*NetworkedStore)(nil)

func NewNetworkedStore(cfg Config, baseLog *logger.Logger) (*NetworkedStore, error) {
	cfg = cfg.withDefaults()
	serviceLog := baseLog.With("service", "NetworkedStore", "dialect", string(cfg.Dialect))

	if strings.TrimSpace(cfg.Host) == "" {
		return nil, perr.Op("open", "", perr.ErrConnectivity, errors.New("store.host is required"))
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, perr.Op("open", "", perr.ErrConnectivity, errors.New("store.database is required"))
	}
	addr := hostPort(cfg.Host, cfg.Port, cfg.Dialect.defaultPort())

	var (
		dialector gorm.Dialector
		classify  func(error) error
	)
	switch cfg.Dialect {
	case DialectPostgres:
		connCfg, err := postgresConnConfig(cfg, addr)
		if err != nil {
			return nil, perr.Op("open", "", perr.ErrConnectivity, err)
		}
		dialector = postgres.New(postgres.Config{Conn: stdlib.OpenDB(*connCfg)})
		classify = classifyPostgresError
	case DialectMySQL:
		dialector = mysql.New(mysql.Config{
			DSN:                       mysqlDSN(cfg, addr),
			SkipInitializeWithVersion: true,
			DefaultStringSize:         255,
		})
		classify = classifyMySQLError
	default:
		return nil, perr.Op("open", "", perr.ErrConnectivity, fmt.Errorf("unknown dialect %q", cfg.Dialect))
	}

	db, err := gorm.Open(dialector, gormConfig(serviceLog))
	if err != nil {
		return nil, perr.Op("open", "", perr.ErrConnectivity, err)
	}
	pool, err := NewPool(db, cfg.PoolSize, serviceLog)
	if err != nil {
		return nil, perr.Op("open", "", perr.ErrConnectivity, err)
	}

	loc := cfg.Location
	s := &NetworkedStore{
		dialect: cfg.Dialect,
		addr:    addr,
		db:      db,
		pool:    pool,
		log:     serviceLog,
	}
	s.tbl = table{
		name:     cfg.TableName,
		pool:     pool,
		log:      serviceLog,
		loc:      loc,
		classify: classify,
		encodeStamp: func(t time.Time) any {
			return t.In(loc).Truncate(time.Second)
		},
		selectStamp: func(column string) string { return column },
	}
	serviceLog.Info("Configured networked store", "addr", addr, "database", cfg.Database, "table", cfg.TableName, "pool_size", pool.Stats().Capacity)
	return s, nil
}

func hostPort(host string, port, def int) string {
	host = strings.TrimSpace(host)
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if port <= 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func postgresConnConfig(cfg Config, addr string) (*pgx.ConnConfig, error) {
	q := url.Values{}
	q.Set("sslmode", "prefer")
	q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     addr,
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	connCfg, err := pgx.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	connCfg.ConnectTimeout = cfg.ConnectTimeout
	return connCfg, nil
}

func mysqlDSN(cfg Config, addr string) string {
	mc := mysqldriver.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = addr
	mc.DBName = cfg.Database
	mc.Timeout = cfg.ConnectTimeout
	mc.Loc = cfg.Location
	mc.ParseTime = false
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

func classifyPostgresError(err error) error {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return perr.ErrConnectivity
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception
		if strings.HasPrefix(pgErr.Code, "08") {
			return perr.ErrConnectivity
		}
		return perr.ErrStore
	}
	return classifyNetError(err)
}

func classifyMySQLError(err error) error {
	if errors.Is(err, mysqldriver.ErrInvalidConn) {
		return perr.ErrConnectivity
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		// 1045 access denied, 1049 unknown database
		if myErr.Number == 1045 || myErr.Number == 1049 {
			return perr.ErrConnectivity
		}
		return perr.ErrStore
	}
	return classifyNetError(err)
}

func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return perr.ErrConnectivity
	}
	return perr.ErrStore
}

func (s *NetworkedStore) Kind() Kind       { return KindNetworked }
func (s *NetworkedStore) Dialect() Dialect { return s.dialect }
func (s *NetworkedStore) Pool() *Pool      { return s.pool }

func (s *NetworkedStore) IsReachable(ctx context.Context) bool {
	if err := s.pool.Ping(ctx); err != nil {
		s.log.Error("Unable to connect to database", "addr", s.addr, "error", err)
		return false
	}
	return true
}

func (s *NetworkedStore) HasSchema(ctx context.Context) bool { return s.tbl.hasSchema(ctx) }

func (s *NetworkedStore) EnsureSchema(ctx context.Context) error {
	return s.tbl.ensureSchema(ctx)
}

func (s *NetworkedStore) Fetch(ctx context.Context, playerID uuid.UUID) (*domain.Record, error) {
	return s.tbl.fetch(ctx, playerID)
}

func (s *NetworkedStore) Exists(ctx context.Context, playerID uuid.UUID) (bool, error) {
	return s.tbl.exists(ctx, playerID)
}

func (s *NetworkedStore) Upsert(ctx context.Context, rec *domain.Record) error {
	return s.tbl.upsert(ctx, rec)
}

func (s *NetworkedStore) ReadTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField) (time.Time, error) {
	return s.tbl.readTimestamp(ctx, playerID, field)
}

func (s *NetworkedStore) WriteTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField, at time.Time) error {
	return s.tbl.writeTimestamp(ctx, playerID, field, at)
}

func (s *NetworkedStore) Close() error {
	return s.pool.Close()
}
