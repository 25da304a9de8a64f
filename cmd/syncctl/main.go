// Command syncctl administers a dms-sync deployment: schema migrations,
// entity grants, the conflict ledger and development tokens.
package main

import (
	"os"

	"github.com/bilzee/dms-sync/internal/logger"
)

var buildVersion string

func main() {
	env := newEnv(logger.NewLogger("syncctl"), os.Stdout)

	err := newRootCmd(env).Execute()
	env.close()
	if err != nil {
		os.Exit(1)
	}
}
