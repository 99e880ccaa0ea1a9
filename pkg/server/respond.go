package server

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
)

var generator *shortid.Shortid

type clientError struct {
	ID            string      `json:"id"`
	MessageToUser string      `json:"messageToUser"`
	DeveloperInfo string      `json:"developerInfo"`
	Err           string      `json:"error"`
	StatusCode    int         `json:"statusCode"`
	IsClientError bool        `json:"isClientError"`
	Kind          geoerr.Kind `json:"kind,omitempty"`
}

func init() {
	g, err := shortid.New(1, shortid.DefaultABC, rand.Uint64())
	if err != nil {
		logrus.Panicf("Failed to initialize server package with error: %+v", err)
	}
	generator = g
}

// ParseBody parses the values from io reader to a given interface
func ParseBody(body io.Reader, out interface{}) error {
	return json.NewDecoder(body).Decode(out)
}

// RespondJSON sends the interface as a JSON
func RespondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.WriteHeader(statusCode)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logrus.Errorf("Failed to respond JSON with error: %+v", err)
		}
	}
}

// newClientError creates structured client error response message
func newClientError(err error, statusCode int, messageToUser string, additionalInfoForDevs ...string) *clientError {
	additionalInfoJoined := strings.Join(additionalInfoForDevs, "\n")
	if len(additionalInfoJoined) == 0 {
		additionalInfoJoined = messageToUser
	}

	errorID, _ := generator.Generate()
	var errString string
	if err != nil {
		errString = err.Error()
	}
	return &clientError{
		ID:            errorID,
		MessageToUser: messageToUser,
		DeveloperInfo: additionalInfoJoined,
		Err:           errString,
		StatusCode:    statusCode,
		IsClientError: statusCode >= 400 && statusCode < 500,
		Kind:          geoerr.KindOf(err),
	}
}

// RespondError sends an error message to the API caller and logs the error
func RespondError(w http.ResponseWriter, statusCode int, err error, messageToUser string, additionalInfoForDevs ...string) {
	logrus.Errorf("status: %d, message: %s, err: %+v ", statusCode, messageToUser, err)
	clientError := newClientError(err, statusCode, messageToUser, additionalInfoForDevs...)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(clientError); err != nil {
		logrus.Errorf("Failed to send error to caller with error: %+v", err)
	}
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind geoerr.Kind) int {
	switch {
	case kind == geoerr.KindNotFound:
		return http.StatusNotFound
	case kind.IsClientError():
		return http.StatusBadRequest
	case kind == geoerr.KindIndexUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var userMessages = map[geoerr.Kind]string{
	geoerr.KindMalformedInput:     "Location must be two comma separated numbers",
	geoerr.KindNonNumericToken:    "Location contains a value that is not a number",
	geoerr.KindOutOfBounds:        "Location is outside the valid coordinate range",
	geoerr.KindInvalidQuery:       "Invalid query parameters",
	geoerr.KindInvalidRecord:      "Invalid record",
	geoerr.KindNotFound:           "Not found",
	geoerr.KindIndexUnavailable:   "Store index is not available",
	geoerr.KindStorageUnavailable: "Storage is not available",
}

// RespondKindError responds with the status and message derived from err's kind
func RespondKindError(w http.ResponseWriter, err error) {
	kind := geoerr.KindOf(err)
	msg, ok := userMessages[kind]
	if !ok {
		msg = "There was an internal server error"
	}
	RespondError(w, StatusFor(kind), err, msg)
}

// GetOffsetLimit returns offset and limit from the query string
func GetOffsetLimit(r *http.Request) (models.PageRequest, error) {
	page := models.PageRequest{Offset: 0, Limit: models.DefaultPageLimit}
	var err error
	if v := r.URL.Query().Get("offset"); v != "" {
		if page.Offset, err = strconv.Atoi(v); err != nil {
			return page, errors.Wrapf(geoerr.ErrInvalidQuery, "offset %q is not a number", v)
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if page.Limit, err = strconv.Atoi(v); err != nil {
			return page, errors.Wrapf(geoerr.ErrInvalidQuery, "limit %q is not a number", v)
		}
	}
	return page, nil
}
