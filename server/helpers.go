package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Daskott/tandem/server/auth"
	"github.com/Daskott/tandem/server/linking"
	"github.com/Daskott/tandem/server/models"
	"github.com/Daskott/tandem/utils"
	"github.com/go-playground/validator"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,30}$`)

// ---------------------------------------------------------------------------------//
// Handler Helper functions
// --------------------------------------------------------------------------------//

func writeResponse(rw http.ResponseWriter, payLoad ResponsePayload, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		logg.Error(payLoad.Errors)
	} else if statusCode >= http.StatusBadRequest {
		logg.Info(payLoad.Errors)
	}

	if payLoad.Errors == nil {
		payLoad.Errors = []string{}
	}

	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(payLoad)
}

func writeErrors(rw http.ResponseWriter, statusCode int, errs ...string) {
	writeResponse(rw, ResponsePayload{Errors: errs}, statusCode)
}

// writeInternalError logs the cause & responds with a generic message
func writeInternalError(rw http.ResponseWriter, err error) {
	logg.Error(err)
	writeErrors(rw, http.StatusInternalServerError, "something went wrong, please try again later")
}

func validationErrors(err error) []string {
	return strings.Split(err.Error(), "\n")
}

func removeUnknownFields(args map[string]interface{}, validFields map[string]bool) {
	for key := range args {
		if !validFields[key] {
			delete(args, key)
		}
	}
}

func RegisterValidators(validate *validator.Validate) error {
	err := validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		return len(password) >= 8 && !strings.ContainsAny(password, " \t\n")
	})
	if err != nil {
		return err
	}

	return validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
}

// linkErrorStatus maps linking failures to http statuses. Only the sentinel
// message is returned to the client.
func linkErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, linking.ErrInvalidFormat):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, linking.ErrNotFound):
		return http.StatusNotFound, linking.ErrNotFound.Error()
	case errors.Is(err, linking.ErrSelfLinkRejected):
		return http.StatusConflict, linking.ErrSelfLinkRejected.Error()
	case errors.Is(err, linking.ErrRequesterCardMissing):
		return http.StatusPreconditionFailed, linking.ErrRequesterCardMissing.Error()
	case errors.Is(err, linking.ErrWriteFailed):
		return http.StatusInternalServerError, linking.ErrWriteFailed.Error()
	default:
		return http.StatusInternalServerError, "something went wrong, please try again later"
	}
}

func uintVar(r *http.Request, name string) (uint, error) {
	value, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func pageQuery(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// ---------------------------------------------------------------------------------//
// Middleware Helper functions
// --------------------------------------------------------------------------------//

func decodeAndVerifyAuthHeader(authHeaderValue string) DecodedJWT {
	authHeaderList := strings.Split(authHeaderValue, "Bearer ")
	if len(authHeaderList) < 2 {
		return DecodedJWT{ErrorMsg: "no token provided"}
	}

	tokenClaims, err := auth.DecodeSessionJWT(authHeaderList[1], authKeyPair)
	if err != nil {
		return DecodedJWT{ErrorMsg: "invalid token provided"}
	}

	// validate that the user account still exists
	_, err = models.FindUserBy("id", tokenClaims.Subject)
	if err != nil {
		return DecodedJWT{ErrorMsg: "invalid token provided"}
	}

	return DecodedJWT{Claims: tokenClaims}
}

// client is only able to update/view their own record unless client is an admin
// who can GET/DELETE the user record itself
func canAccessUserResource(r *http.Request, userClaims *auth.TandemTokenClaims) bool {
	allowedMethodsForAdmins := map[string]bool{http.MethodGet: true, http.MethodDelete: true}
	deniedPathsForAdmin := []string{"/card", "/contacts", "/links"}

	if mux.Vars(r)["uid"] == userClaims.Subject {
		return true
	}

	if !userClaims.IsAdmin || !allowedMethodsForAdmins[r.Method] {
		return false
	}

	for _, deniedPath := range deniedPathsForAdmin {
		if strings.Contains(r.URL.Path, deniedPath) {
			return false
		}
	}

	return true
}

// ---------------------------------------------------------------------------------//
// Server Helper functions
// --------------------------------------------------------------------------------//

func serve(server *http.Server, name string) {
	logg.Infof("%s is listening on %v", name, server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Fatal(err)
	}
}

func shutdown(server *http.Server, name string) {
	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutDown); err != nil {
		logg.Fatalf("%s shutdown failed:%+s", name, err)
	}

	logg.Infof("%s stopped properly", name)
}

// configDirectory retrieves the directory to store tandem data
// Or logs an error message and then calls os.Exit if it's unable to.
func configDirectory(devMode bool) string {
	// Use 'tandem' folder in home directory for prod
	configFolderName := "tandem"
	rootDir, err := os.UserHomeDir()
	fatalOnError(err)

	// Use 'dev' folder in current directory for dev mode
	if devMode {
		configFolderName = "dev"
		rootDir, err = os.Getwd()
		fatalOnError(err)
	}

	configDir := filepath.Join(rootDir, configFolderName)

	err = utils.CreateDirIfNotExist(configDir)
	fatalOnError(err)

	return configDir
}

func fatalOnError(err error) {
	if err != nil {
		logg.Fatal(err)
	}
}

// closeAll closes every closer concurrently & returns the first error
func closeAll(closers ...io.Closer) error {
	var g errgroup.Group
	for _, closer := range closers {
		closer := closer
		g.Go(closer.Close)
	}
	return g.Wait()
}
