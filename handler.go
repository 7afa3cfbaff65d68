package accounts

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/jimiolaniyan/accounts/asset"
	"github.com/jimiolaniyan/accounts/logger"
)

const formOverheadBytes = 1 << 20

type HandlerOptions struct {
	RequireProfilePic bool
	MaxUploadBytes    int64
	// UploadsDir is served under UploadsPrefix when set.
	UploadsDir    string
	UploadsPrefix string
}

type accountResponse struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic,omitempty"`
	Biography  string `json:"biography,omitempty"`
	Changed    *bool  `json:"changed,omitempty"`
}

func newAccountResponse(acc *Account, assets AssetStore) accountResponse {
	return accountResponse{
		ID:         acc.ID,
		Name:       acc.Name,
		ProfilePic: assets.Resolve(acc.ProfilePic),
		Biography:  acc.Biography,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewRouter(svc Service, assets AssetStore, opts HandlerOptions) *httprouter.Router {
	router := httprouter.New()
	router.Handler(http.MethodPost, "/v1/accounts", RegisterAccountHandler(svc, assets, opts))
	router.Handler(http.MethodPost, "/v1/login", LoginHandler(svc, assets))
	router.Handler(http.MethodGet, "/v1/accounts/:name", GetAccountHandler(svc, assets))
	router.Handler(http.MethodPatch, "/v1/accounts/:name", UpdateProfileHandler(svc, assets, opts))

	if opts.UploadsDir != "" {
		prefix := opts.UploadsPrefix
		if prefix == "" {
			prefix = asset.DefaultPublicPrefix
		}
		router.ServeFiles(path.Join(prefix, "*filepath"), uploadsFS{http.Dir(opts.UploadsDir)})
	}
	return router
}

func RegisterAccountHandler(svc Service, assets AssetStore, opts HandlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := parseForm(w, r, opts.MaxUploadBytes); err != nil {
			encodeFormError(err, w)
			return
		}

		file, hdr, err := r.FormFile("profilePic")
		switch {
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			if opts.RequireProfilePic {
				encodeError(r, &ValidationError{Field: FieldProfilePic, Reason: "required"}, w)
				return
			}
		case err != nil:
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var ref string
		if file != nil {
			ref, err = storeUpload(r, assets, file, hdr)
			if err != nil {
				encodeError(r, err, w)
				return
			}
		}

		acc, err := svc.Register(r.Context(), RegisterRequest{
			Name:       r.PostFormValue("username"),
			Email:      r.PostFormValue("email"),
			Password:   r.PostFormValue("password"),
			ProfilePic: ref,
		})
		if err != nil {
			discardUpload(r, assets, ref)
			encodeError(r, err, w)
			return
		}

		w.Header().Set("Location", "/v1/accounts/"+url.PathEscape(acc.Name))
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(newAccountResponse(acc, assets)); err != nil {
			logger.FromContext(r.Context()).Error("encode response", slog.Any("error", err))
		}
	})
}

func LoginHandler(svc Service, assets AssetStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeLoginRequest(r)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		acc, err := svc.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			encodeError(r, err, w)
			return
		}

		if err := json.NewEncoder(w).Encode(newAccountResponse(acc, assets)); err != nil {
			logger.FromContext(r.Context()).Error("encode response", slog.Any("error", err))
		}
	})
}

func GetAccountHandler(svc Service, assets AssetStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		name := httprouter.ParamsFromContext(r.Context()).ByName("name")

		acc, err := svc.GetAccount(r.Context(), name)
		if err != nil {
			encodeError(r, err, w)
			return
		}

		if err := json.NewEncoder(w).Encode(newAccountResponse(acc, assets)); err != nil {
			logger.FromContext(r.Context()).Error("encode response", slog.Any("error", err))
		}
	})
}

func UpdateProfileHandler(svc Service, assets AssetStore, opts HandlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := parseForm(w, r, opts.MaxUploadBytes); err != nil {
			encodeFormError(err, w)
			return
		}

		req := UpdateProfileRequest{
			Name:    httprouter.ParamsFromContext(r.Context()).ByName("name"),
			NewName: r.PostFormValue("username"),
		}
		if _, ok := r.PostForm["biography"]; ok {
			bio := r.PostFormValue("biography")
			req.Biography = &bio
		}

		file, hdr, err := r.FormFile("profilePic")
		switch {
		case err == nil:
			if req.ProfilePic, err = storeUpload(r, assets, file, hdr); err != nil {
				encodeError(r, err, w)
				return
			}
		case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		acc, err := svc.UpdateProfile(r.Context(), req)
		changed := err == nil
		if err != nil && !errors.Is(err, ErrNoOpUpdate) {
			discardUpload(r, assets, req.ProfilePic)
			encodeError(r, err, w)
			return
		}

		res := newAccountResponse(acc, assets)
		res.Changed = &changed
		if err := json.NewEncoder(w).Encode(res); err != nil {
			logger.FromContext(r.Context()).Error("encode response", slog.Any("error", err))
		}
	})
}

// uploadsFS exposes stored pictures only. Directories and dot-prefixed names,
// the partial upload area included, are reported as missing so nothing can be
// listed.
type uploadsFS struct {
	root http.FileSystem
}

func (u uploadsFS) Open(name string) (http.File, error) {
	for _, part := range strings.Split(strings.Trim(name, "/"), "/") {
		if part == "" || strings.HasPrefix(part, ".") {
			return nil, fs.ErrNotExist
		}
	}

	f, err := u.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// parseForm accepts multipart and urlencoded bodies up to the upload limit.
func parseForm(w http.ResponseWriter, r *http.Request, maxUpload int64) error {
	if maxUpload <= 0 {
		maxUpload = asset.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+formOverheadBytes)

	err := r.ParseMultipartForm(formOverheadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func storeUpload(r *http.Request, assets AssetStore, file multipart.File, hdr *multipart.FileHeader) (string, error) {
	defer file.Close()
	return assets.Store(r.Context(), file, hdr.Filename)
}

func discardUpload(r *http.Request, assets AssetStore, ref string) {
	if ref == "" {
		return
	}
	if err := assets.Discard(r.Context(), ref); err != nil {
		logger.FromContext(r.Context()).Warn("discard orphaned asset", slog.String("ref", ref), slog.Any("error", err))
	}
}

func decodeLoginRequest(r *http.Request) (loginRequest, error) {
	req := loginRequest{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return loginRequest{}, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return loginRequest{}, err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return req, nil
}

func encodeFormError(err error, w http.ResponseWriter) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": asset.ErrTooLarge.Error()})
		return
	}
	w.WriteHeader(http.StatusBadRequest)
}

func encodeError(r *http.Request, err error, w http.ResponseWriter) {
	msg := err.Error()
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, asset.ErrEmpty):
		w.WriteHeader(http.StatusUnprocessableEntity)
	case errors.Is(err, ErrDuplicateName), errors.Is(err, ErrDuplicateEmail):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, ErrUnknownUser):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrBadCredentials):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, asset.ErrTooLarge):
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	case errors.Is(err, asset.ErrUnsupportedType):
		w.WriteHeader(http.StatusUnsupportedMediaType)
	default:
		logger.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
		msg = "internal error"
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"error": msg,
	}); err != nil {
		logger.FromContext(r.Context()).Error("encode error response", slog.Any("error", err))
	}
}
