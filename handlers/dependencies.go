package handlers

import (
	"net/http"

	"github.com/alorle/pvr-manager/internal/application"
	"github.com/alorle/pvr-manager/logging"
)

// Dependencies holds all the dependencies needed by the handlers
type Dependencies struct {
	Logger *logging.Logger
	TV     *application.GroupManager
	Radio  *application.GroupManager
}

// manager selects the TV or radio manager based on the "radio" query
// parameter. TV is the default.
func (d Dependencies) manager(r *http.Request) *application.GroupManager {
	if r.URL.Query().Get("radio") == "true" && d.Radio != nil {
		return d.Radio
	}
	return d.TV
}
