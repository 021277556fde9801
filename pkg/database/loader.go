package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"retail-analytics/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/op/go-logging"
	_ "modernc.org/sqlite"
)

var log = logging.MustGetLogger("retail")

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open ouvre une source SQL selon le schéma du DSN :
// mariadb:// ou mysql:// → driver MySQL ; postgres:// → lib/pq ; sqlite:// ou fichier .db → SQLite.
// Tout autre DSN est transmis tel quel au driver MySQL.
// Retourne la connexion, le nom du driver et le DSN effectivement utilisé.
func Open(dsn string) (*sql.DB, string, string, error) {
	driver, driverDSN, err := resolve(dsn)
	if err != nil {
		return nil, "", "", err
	}
	db, err := sql.Open(driver, driverDSN)
	if err != nil {
		return nil, "", "", err
	}
	if driver == "sqlite" {
		// une base :memory: n'existe que sur sa propre connexion
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, driver, driverDSN, nil
}

func resolve(dsn string) (string, string, error) {
	switch {
	case strings.HasPrefix(dsn, "mariadb://"), strings.HasPrefix(dsn, "mysql://"):
		out, err := toMySQLDSN(dsn)
		return "mysql", out, err
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("dsn incomplet (chemin sqlite)")
		}
		return "sqlite", path, nil
	case dsn == ":memory:", strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"):
		return "sqlite", dsn, nil
	}
	out, err := toMySQLDSN(dsn)
	return "mysql", out, err
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

// LoadTransactions lit la table de transactions et la retourne au format brut.
// Les colonnes obligatoires sont sélectionnées par nom ; une colonne absente fait échouer la requête.
func LoadTransactions(ctx context.Context, db *sql.DB, tableName string) (models.RawTable, error) {
	if !tableNameRe.MatchString(tableName) {
		return models.RawTable{}, fmt.Errorf("table invalide")
	}

	q := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(models.RequiredColumns, ", "), tableName)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return models.RawTable{}, fmt.Errorf("query %s: %w", tableName, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return models.RawTable{}, err
	}
	raw := models.RawTable{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return models.RawTable{}, err
		}
		for i, v := range values {
			// les drivers MySQL/Postgres renvoient le texte en []byte, réutilisé entre deux Scan
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		raw.Rows = append(raw.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return models.RawTable{}, err
	}

	log.Debugf("database: %d lignes lues depuis %s", len(raw.Rows), tableName)
	return raw, nil
}
