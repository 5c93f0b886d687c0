package app

import (
	"io"

	"github.com/vk/jobgrid/internal/registry"
	"github.com/vk/jobgrid/modules/fail"
	"github.com/vk/jobgrid/modules/healthcheck"
	"github.com/vk/jobgrid/modules/heartbeat"
	"github.com/vk/jobgrid/modules/http_request"
	"github.com/vk/jobgrid/modules/http_wait"
	"github.com/vk/jobgrid/modules/print"
	"github.com/vk/jobgrid/modules/sleep"
	"github.com/vk/jobgrid/modules/socketio"
	"github.com/vk/jobgrid/modules/sql_exec"
)

// coreModules is the definitive list of all job kinds compiled into the
// jobgrid binary. print writes to outW.
func coreModules(outW io.Writer) []registry.Module {
	return []registry.Module{
		&print.Module{Out: outW},
		&sleep.Module{},
		&fail.Module{},
		&http_request.Module{},
		&http_wait.Module{},
		&socketio.Module{},
		&healthcheck.Module{},
		&heartbeat.Module{},
		&sql_exec.Module{},
	}
}
