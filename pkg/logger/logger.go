package logger

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

// Module est le nom de module partagé par tous les loggers du projet.
const Module = "retail"

// Init reçoit le niveau de log sous forme de chaîne (DEBUG, INFO, WARNING, ERROR...)
// et configure le backend go-logging. Un niveau invalide retourne une erreur.
func Init(logLevel string) error {
	return InitWithWriter(os.Stdout, logLevel)
}

// InitWithWriter configure le backend sur un writer arbitraire (stderr, fichier, tests).
func InitWithWriter(w io.Writer, logLevel string) error {
	baseBackend := logging.NewLogBackend(w, "", 0)
	format := logging.MustStringFormatter(
		`%{time:2006-01-02 15:04:05} %{level:.5s}     %{message}`,
	)
	backendFormatter := logging.NewBackendFormatter(baseBackend, format)

	backendLeveled := logging.AddModuleLevel(backendFormatter)
	logLevelCode, err := logging.LogLevel(logLevel)
	if err != nil {
		return err
	}
	backendLeveled.SetLevel(logLevelCode, "")

	logging.SetBackend(backendLeveled)
	return nil
}
