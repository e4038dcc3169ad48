package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// ConnectHook runs once for every new physical connection, before the pool
// hands it out. Returning an error discards the connection.
type ConnectHook func(ctx context.Context, conn *PhysicalConn) error

// PhysicalConn is a freshly dialed driver connection handed to connect hooks.
type PhysicalConn struct {
	conn    driver.Conn
	backend string
}

// Backend returns the backend name, e.g. "sqlite".
func (c *PhysicalConn) Backend() string {
	return c.backend
}

// Raw returns the underlying driver connection.
func (c *PhysicalConn) Raw() driver.Conn {
	return c.conn
}

// Exec runs a statement without arguments on the raw connection, e.g. a
// connection-scoped PRAGMA or SET.
func (c *PhysicalConn) Exec(ctx context.Context, query string) error {
	if execer, ok := c.conn.(driver.ExecerContext); ok {
		_, err := execer.ExecContext(ctx, query, nil)
		if !errors.Is(err, driver.ErrSkip) {
			return err
		}
	}

	var (
		stmt driver.Stmt
		err  error
	)
	if preparer, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = preparer.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		return err
	}
	defer stmt.Close()

	if sc, ok := stmt.(driver.StmtExecContext); ok {
		_, err = sc.ExecContext(ctx, nil)
		return err
	}
	_, err = stmt.Exec(nil)
	return err
}

// hookedConnector wraps a driver.Connector and runs onConnect on every
// connection it dials. database/sql calls Connect only when the pool needs
// a new physical connection, so hooks fire once per connection rather than
// once per checkout.
type hookedConnector struct {
	inner     driver.Connector
	backend   string
	onConnect func(ctx context.Context, conn *PhysicalConn) error
}

func (c *hookedConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.onConnect(ctx, &PhysicalConn{conn: conn, backend: c.backend}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *hookedConnector) Driver() driver.Driver {
	return c.inner.Driver()
}

// dsnConnector serves drivers that do not implement driver.DriverContext.
type dsnConnector struct {
	dsn string
	drv driver.Driver
}

func (c dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.drv.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.drv
}

// newConnector resolves the registered driver for driverName and returns a
// connector for dsn. Nothing is dialed.
func newConnector(driverName, dsn string) (driver.Connector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open driver %s: %w", driverName, err)
	}
	drv := db.Driver()
	db.Close()

	if dc, ok := drv.(driver.DriverContext); ok {
		return dc.OpenConnector(dsn)
	}
	return dsnConnector{dsn: dsn, drv: drv}, nil
}
