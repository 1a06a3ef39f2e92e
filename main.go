package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	ctx := context.Background()
	l := logrus.New()

	// this is optional, ignore when it doesn't exist
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		l.WithError(err).Fatal("loading .env file")
	}

	app := kingpin.New("interactd", "Interaction and consent front end for an OIDC engine.")
	app.Version(getVersion())

	serveCmd, serveRun := serveCommand(app)

	cmdName := kingpin.MustParse(app.Parse(os.Args[1:]))

	var runErr error
	switch cmdName {
	case serveCmd.FullCommand():
		runErr = serveRun(ctx, l)
	default:
		panic("should not happen, kingpin should handle this")
	}
	if runErr != nil {
		l.WithError(runErr).Fatal()
	}
}

func getVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	var (
		rev   string
		dirty bool
	)
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	verStr := bi.Main.Version + " (rev: " + rev
	if dirty {
		verStr += ", dirty"
	}
	verStr += ")"

	return verStr
}
