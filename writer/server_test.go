package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"community.io/pinboard/config"
	se "community.io/pinboard/errors"
	md "community.io/pinboard/models"
	st "community.io/pinboard/stores"
)

const (
	testTrapName = "faketrap"
	testPassword = "hunter2"
)

type formView struct {
	Trap, Title, Description, Location, PostedBy, Datetime, ThumbnailURL, ThumbnailImageDescr string
	File                                                                                      *upload
}

func goodFormView() formView {
	return formView{
		Title:       "Meow meetup",
		Description: "Cats and their people",
		Location:    "Grote Markt",
		PostedBy:    "tabby",
		Datetime:    time.Now().Add(48 * time.Hour).UTC().Format(md.LocalDatetimeLayout),
	}
}

func genPinReqBody(t *testing.T, v formView) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	require.NoError(t, mpw.WriteField(testTrapName, v.Trap))
	for _, kv := range [][2]string{
		{md.FieldTitle, v.Title},
		{md.FieldDescription, v.Description},
		{md.FieldLocation, v.Location},
		{md.FieldPostedBy, v.PostedBy},
		{md.FieldDatetime, v.Datetime},
		{formFieldThumbnailURL, v.ThumbnailURL},
		{md.FieldThumbnailImageDescr, v.ThumbnailImageDescr},
		{"unknownField", "ignored"},
	} {
		require.NoError(t, mpw.WriteField(kv[0], kv[1]))
	}
	if v.File != nil {
		fw, err := mpw.CreateFormFile(formFieldThumbnailFile, v.File.Filename)
		require.NoError(t, err)
		_, err = fw.Write(v.File.Data)
		require.NoError(t, err)
	}
	require.NoError(t, mpw.Close())
	return &buf, mpw.FormDataContentType()
}

func newTestWriter(t *testing.T) (*writer, *st.FilePinStore) {
	t.Helper()
	dirs := st.DirsUnder(t.TempDir())
	files := st.NewLocalFileStore(dirs)
	require.Nil(t, files.EnsureDirectories())
	pins := st.NewFilePinStore(files, dirs, md.DefaultTimeConfig())
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{
		Time:      md.DefaultTimeConfig(),
		Dirs:      dirs,
		CacheSize: 16,
		Limits: config.FieldLimits{
			Title:        80,
			Description:  400,
			Location:     150,
			PostedBy:     50,
			ThumbnailURL: 50,
			ImageDescr:   300,
			UploadBytes:  64,
		},
		TrapName:          testTrapName,
		AdminPasswordHash: string(hash),
		SessionKey:        "0123456789abcdef0123456789abcdef",
	}
	shared := &config.Shared{Locker: st.NewLocalLocker(), Sessions: config.NewCookieStore(cfg.SessionKey)}
	return newWriter(cfg, pins, shared), pins
}

func postPin(t *testing.T, wrt *writer, path string, v formView, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := genPinReqBody(t, v)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	wrec := httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	return wrec
}

func login(t *testing.T, wrt *writer, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(url.Values{"password": {password}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	wrec := httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	return wrec
}

func decode(t *testing.T, wrec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(wrec.Body.Bytes(), v), wrec.Body.String())
}

func TestHandleTaskCreatePin(t *testing.T) {
	tcs := []struct {
		name           string
		form           func() formView
		expectedCode   int
		expectedFields []string
	}{
		{
			name:         "HappyCase",
			form:         goodFormView,
			expectedCode: http.StatusCreated,
		},
		{
			name: "SpamAttempt",
			form: func() formView {
				v := goodFormView()
				v.Trap = "y"
				return v
			},
			expectedCode: http.StatusForbidden,
		},
		{
			name: "EmptyTitle",
			form: func() formView {
				v := goodFormView()
				v.Title = "   "
				return v
			},
			expectedCode:   http.StatusBadRequest,
			expectedFields: []string{"title"},
		},
		{
			name: "OversizedTitle",
			form: func() formView {
				v := goodFormView()
				v.Title = strings.Repeat("é", 81)
				return v
			},
			expectedCode:   http.StatusBadRequest,
			expectedFields: []string{"title"},
		},
		{
			name: "TitleOverByteBudget",
			form: func() formView {
				v := goodFormView()
				v.Title = strings.Repeat("meow", 200)
				return v
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "MissingRequiredFields",
			form: func() formView {
				v := goodFormView()
				v.Location, v.PostedBy, v.Datetime = "", "", ""
				return v
			},
			expectedCode:   http.StatusBadRequest,
			expectedFields: []string{"location", "postedBy", "datetime"},
		},
		{
			name: "UnparsableDatetime",
			form: func() formView {
				v := goodFormView()
				v.Datetime = "next tuesday"
				return v
			},
			expectedCode:   http.StatusBadRequest,
			expectedFields: []string{"datetime"},
		},
		{
			name: "InvalidThumbnailURL",
			form: func() formView {
				v := goodFormView()
				v.ThumbnailURL = "not a url"
				return v
			},
			expectedCode:   http.StatusBadRequest,
			expectedFields: []string{"thumbnailUrl"},
		},
		{
			name: "UploadWithoutDescription",
			form: func() formView {
				v := goodFormView()
				v.File = &upload{Filename: "cat.jpeg", Data: []byte("jpeg")}
				return v
			},
			expectedCode:   http.StatusBadRequest,
			expectedFields: []string{"thumbnailImageDescr"},
		},
		{
			name: "OversizedUpload",
			form: func() formView {
				v := goodFormView()
				v.File = &upload{Filename: "cat.jpeg", Data: bytes.Repeat([]byte("x"), 65)}
				v.ThumbnailImageDescr = "a cat"
				return v
			},
			expectedCode: http.StatusRequestEntityTooLarge,
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			wrt, pins := newTestWriter(t)
			wrec := postPin(t, wrt, "/pin", c.form())
			assert.Equal(t, c.expectedCode, wrec.Code, wrec.Body.String())
			assert.NotEmpty(t, wrec.Header().Get("X-Request-ID"))

			stored, err := pins.List(st.FilterAll)
			require.Nil(t, err)
			if c.expectedCode != http.StatusCreated {
				assert.Empty(t, stored, "rejected pins must not be stored")
				var ev errView
				decode(t, wrec, &ev)
				for _, f := range c.expectedFields {
					assert.Contains(t, ev.Fields, f)
				}
				return
			}
			assert.Len(t, stored, 1)
		})
	}
}

func TestHandleTaskCreatePin_ClashingTitles(t *testing.T) {
	wrt, pins := newTestWriter(t)
	var slugs []string
	for i := 0; i < 3; i++ {
		wrec := postPin(t, wrt, "/pin", goodFormView())
		require.Equal(t, http.StatusCreated, wrec.Code, wrec.Body.String())
		var saved savedPin
		decode(t, wrec, &saved)
		slugs = append(slugs, saved.Slug)
	}
	assert.Equal(t, []string{"meow-meetup", "meow-meetup-0", "meow-meetup-1"}, slugs)
	sp, err := pins.ListSlugs(st.FilterAll)
	require.Nil(t, err)
	assert.Len(t, sp, 3)
}

func TestHandleTaskCreatePin_Thumbnails(t *testing.T) {
	t.Run("UploadedFile", func(t *testing.T) {
		wrt, pins := newTestWriter(t)
		v := goodFormView()
		v.File = &upload{Filename: "Cat.JPEG", Data: []byte("jpeg-bytes")}
		v.ThumbnailImageDescr = "a sleepy cat"
		wrec := postPin(t, wrt, "/pin", v)
		require.Equal(t, http.StatusCreated, wrec.Code, wrec.Body.String())
		var saved savedPin
		decode(t, wrec, &saved)
		assert.Equal(t, "/uploads/meow-meetup.jpeg", saved.Thumbnail)

		p, err := pins.Get(saved.Slug)
		require.Nil(t, err)
		assert.Equal(t, "meow-meetup.jpeg", p.Thumbnail)
		assert.Equal(t, "a sleepy cat", p.ThumbnailImageDescr)
		b, rerr := os.ReadFile(pins.UploadPath(p.Thumbnail))
		require.NoError(t, rerr)
		assert.Equal(t, "jpeg-bytes", string(b))
	})
	t.Run("URLWinsOverFile", func(t *testing.T) {
		wrt, pins := newTestWriter(t)
		v := goodFormView()
		v.ThumbnailURL = "https://img.example/cat.png"
		v.File = &upload{Filename: "cat.jpeg", Data: []byte("jpeg-bytes")}
		v.ThumbnailImageDescr = "a cat"
		wrec := postPin(t, wrt, "/pin", v)
		require.Equal(t, http.StatusCreated, wrec.Code, wrec.Body.String())

		p, err := pins.Get("meow-meetup")
		require.Nil(t, err)
		assert.Equal(t, "https://img.example/cat.png", p.Thumbnail)
		entries, rerr := os.ReadDir(filepath.Dir(pins.UploadPath("x")))
		require.NoError(t, rerr)
		assert.Empty(t, entries, "the file must not be stored when a url is given")
	})
}

func TestHandleTaskCreatePin_MissingTrap(t *testing.T) {
	wrt, _ := newTestWriter(t)
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	require.NoError(t, mpw.WriteField(md.FieldTitle, "sneaky"))
	require.NoError(t, mpw.Close())
	req := httptest.NewRequest(http.MethodPost, "/pin", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	wrec := httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	assert.Equal(t, http.StatusBadRequest, wrec.Code)

	req = httptest.NewRequest(http.MethodPost, "/pin", strings.NewReader("title=plain"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	wrec = httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	assert.Equal(t, http.StatusBadRequest, wrec.Code)
}

func TestHandleAuth(t *testing.T) {
	wrt, _ := newTestWriter(t)
	wrec := login(t, wrt, "wrong")
	assert.Equal(t, http.StatusUnauthorized, wrec.Code)
	assert.Empty(t, wrec.Result().Cookies())

	wrec = login(t, wrt, testPassword)
	require.Equal(t, http.StatusOK, wrec.Code)
	cookies := wrec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/edit", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	wrec = httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	assert.Equal(t, http.StatusOK, wrec.Code)

	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	wrec = httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	assert.Equal(t, http.StatusOK, wrec.Code)
	cleared := wrec.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.True(t, cleared[0].MaxAge < 0)

	wrt.Cfg.AdminPasswordHash = ""
	wrec = login(t, wrt, testPassword)
	assert.Equal(t, http.StatusNotImplemented, wrec.Code)
}

func TestHandleTaskEditPin(t *testing.T) {
	wrt, pins := newTestWriter(t)
	v := goodFormView()
	v.File = &upload{Filename: "cat.png", Data: []byte("png")}
	v.ThumbnailImageDescr = "a cat"
	require.Equal(t, http.StatusCreated, postPin(t, wrt, "/pin", v).Code)

	edited := goodFormView()
	edited.Title = "Meow meetup (moved)"
	edited.Location = "Vrijdagmarkt"

	// admins only
	wrec := postPin(t, wrt, "/pin/meow-meetup", edited)
	assert.Equal(t, http.StatusUnauthorized, wrec.Code)

	cookies := login(t, wrt, testPassword).Result().Cookies()
	wrec = postPin(t, wrt, "/pin/meow-meetup", edited, cookies...)
	require.Equal(t, http.StatusOK, wrec.Code, wrec.Body.String())
	var saved savedPin
	decode(t, wrec, &saved)
	assert.Equal(t, "meow-meetup", saved.Slug, "edits keep the slug")

	sp, err := pins.ListSlugs(st.FilterAll)
	require.Nil(t, err)
	require.Len(t, sp, 1)
	assert.Equal(t, "meow-meetup", sp[0].Slug)
	assert.Equal(t, "Meow meetup (moved)", sp[0].Pin.Title)
	assert.Equal(t, "Vrijdagmarkt", sp[0].Pin.Location)
	assert.Equal(t, "meow-meetup.png", sp[0].Pin.Thumbnail, "edits without a new thumbnail keep the old one")
	assert.Equal(t, "a cat", sp[0].Pin.ThumbnailImageDescr)

	wrec = postPin(t, wrt, "/pin/ghost", edited, cookies...)
	assert.Equal(t, http.StatusNotFound, wrec.Code)
	var ev errView
	decode(t, wrec, &ev)
	assert.Equal(t, se.ErrCodeNotFound, ev.Code)
}

func TestHandleTaskGetEditForms(t *testing.T) {
	wrt, pins := newTestWriter(t)
	future := md.Now().Add(24 * time.Hour)
	past := md.Now().Add(-24 * time.Hour)
	_, err := pins.Save(&md.Pin{Title: "Soon", Location: "here", PostedBy: "me", Datetime: future, Thumbnail: "soon.png"}, "soon", false)
	require.Nil(t, err)
	_, err = pins.Save(&md.Pin{Title: "Gone", Location: "there", PostedBy: "me", Datetime: past}, "gone", false)
	require.Nil(t, err)

	req := httptest.NewRequest(http.MethodGet, "/edit", nil)
	for _, c := range login(t, wrt, testPassword).Result().Cookies() {
		req.AddCookie(c)
	}
	wrec := httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	require.Equal(t, http.StatusOK, wrec.Code)

	var v struct {
		Slugs []string                     `json:"slugs"`
		Forms map[string]map[string]string `json:"forms"`
	}
	decode(t, wrec, &v)
	assert.Equal(t, []string{"soon"}, v.Slugs)
	assert.Equal(t, "Soon", v.Forms["soon"]["title"])
	assert.Equal(t, future.Time().UTC().Format(md.LocalDatetimeLayout), v.Forms["soon"]["datetime"])
	assert.Equal(t, "/uploads/soon.png", v.Forms["soon"]["thumbnailUrl"])
}

func TestHandleTaskEditPin_ResubmitPrefilledForm(t *testing.T) {
	wrt, pins := newTestWriter(t)
	created := goodFormView()
	created.File = &upload{Filename: "cat.png", Data: []byte("png")}
	created.ThumbnailImageDescr = "a cat"
	require.Equal(t, http.StatusCreated, postPin(t, wrt, "/pin", created).Code)
	cookies := login(t, wrt, testPassword).Result().Cookies()

	req := httptest.NewRequest(http.MethodGet, "/edit", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	wrec := httptest.NewRecorder()
	wrt.ServeHTTP(wrec, req)
	require.Equal(t, http.StatusOK, wrec.Code)
	var v struct {
		Forms map[string]map[string]string `json:"forms"`
	}
	decode(t, wrec, &v)
	prefilled := v.Forms["meow-meetup"]
	require.NotNil(t, prefilled)
	assert.Equal(t, "/uploads/meow-meetup.png", prefilled[formFieldThumbnailURL])
	assert.Equal(t, "meow-meetup.png", prefilled[md.FieldThumbnail])

	resubmitted := formView{
		Title:               prefilled[md.FieldTitle] + " (moved)",
		Description:         prefilled[md.FieldDescription],
		Location:            prefilled[md.FieldLocation],
		PostedBy:            prefilled[md.FieldPostedBy],
		Datetime:            prefilled[md.FieldDatetime],
		ThumbnailURL:        prefilled[formFieldThumbnailURL],
		ThumbnailImageDescr: prefilled[md.FieldThumbnailImageDescr],
	}
	wrec = postPin(t, wrt, "/pin/meow-meetup", resubmitted, cookies...)
	require.Equal(t, http.StatusOK, wrec.Code, wrec.Body.String())

	p, err := pins.Get("meow-meetup")
	require.Nil(t, err)
	assert.Equal(t, "Meow meetup (moved)", p.Title)
	assert.Equal(t, "meow-meetup.png", p.Thumbnail, "the stored upload name stays bare")
	assert.Equal(t, "a cat", p.ThumbnailImageDescr)
}
