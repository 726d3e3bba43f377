package archive

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testBookID = "goodnightmoon00brow"

// fakePage is what the fake server returns for one page file
type fakePage struct {
	plain   []byte
	version string // obfuscation version; "" means no header
	nonce   [8]byte
	seed    uint64
	block   chan struct{}
}

// fakeArchive is an in-process stand-in for the lending service
type fakeArchive struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	loginReply  string
	browseReply string
	grantReply  string
	renewReply  func(call int) string
	renewDelay  func(call int) time.Duration
	renewCalls  int
	renewStarts []time.Time
	inFlight    int
	maxInFlight int
	loanCalls   int
	detailsHTML string
	metaReply   string
	pages       map[string]*fakePage
	pageCalls   int
	lastReferer string
	lastForm    map[string]string
	pageStarted chan struct{}
}

func newFakeArchive(t *testing.T) *fakeArchive {
	t.Helper()
	f := &fakeArchive{
		t:           t,
		loginReply:  `{"status":"ok","message":""}`,
		browseReply: `{"success":true}`,
		grantReply:  `{"success":true,"value":"grant-token"}`,
		renewReply: func(call int) string {
			return fmt.Sprintf(`{"success":true,"token":"token-%d"}`, call)
		},
		pages:       map[string]*fakePage{},
		pageStarted: make(chan struct{}, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/account/login", f.handleLogin)
	mux.HandleFunc("/services/loans/loan/", f.handleLoan)
	mux.HandleFunc("/services/loans/loan/searchInside.php", f.handleGrant)
	mux.HandleFunc("/details/", f.handleDetails)
	mux.HandleFunc("/BookReader/BookReaderJSIA.php", f.handleMetadata)
	mux.HandleFunc("/BookReader/BookReaderImages.php", f.handlePage)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	// Protocol-relative, as the real details page carries it.
	host := strings.TrimPrefix(f.srv.URL, "http:")
	f.detailsHTML = detailsPage(host + "/BookReader/BookReaderJSIA.php?id=" + testBookID)
	return f
}

func detailsPage(metaURL string) string {
	blob, _ := json.Marshal(map[string]any{"url": metaURL, "subPrefix": testBookID})
	return `<!DOCTYPE html><html><head><title>Goodnight Moon</title></head><body>
<div class="container-ia"><main id="maincontent">
<input class="js-bookreader" type="hidden" value="` + html.EscapeString(string(blob)) + `"/>
</main></div></body></html>`
}

func (f *fakeArchive) session(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(SessionOptions{BaseURL: f.srv.URL, Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	return s
}

// pageURL is the locator URL the metadata advertises for file
func (f *fakeArchive) pageURL(file string) string {
	return f.srv.URL + "/BookReader/BookReaderImages.php?zip=/27/items/" + testBookID + "/" + testBookID + "_jp2.zip&file=" + file + "&id=" + testBookID
}

// setBook installs metadata with the given grouped page files
func (f *fakeArchive) setBook(title string, imagecount any, groups [][]string) {
	var data [][]map[string]any
	for _, g := range groups {
		var group []map[string]any
		for _, file := range g {
			group = append(group, map[string]any{"uri": f.pageURL(file), "width": 800, "height": 1200})
			if _, ok := f.pages[file]; !ok {
				f.pages[file] = &fakePage{plain: []byte("page:" + file)}
			}
		}
		data = append(data, group)
	}
	body, _ := json.Marshal(map[string]any{
		"success": true,
		"data": map[string]any{
			"metadata":  map[string]any{"identifier": testBookID, "title": title, "imagecount": imagecount},
			"brOptions": map[string]any{"data": data, "bookTitle": title},
		},
	})
	f.metaReply = string(body)
}

func (f *fakeArchive) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		http.SetCookie(w, &http.Cookie{Name: "test-cookie", Value: "1", Path: "/"})
		w.Write([]byte("<html>login</html>"))
		return
	}
	if _, err := r.Cookie("test-cookie"); err != nil {
		http.Error(w, "cookie not primed", http.StatusBadRequest)
		return
	}
	r.ParseForm()
	f.mu.Lock()
	f.lastForm = flatForm(r)
	f.lastReferer = r.Header.Get("Referer")
	reply := f.loginReply
	f.mu.Unlock()
	w.Write([]byte(reply))
}

func (f *fakeArchive) handleLoan(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/services/loans/loan/" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	r.ParseForm()
	f.mu.Lock()
	f.loanCalls++
	f.lastForm = flatForm(r)
	f.mu.Unlock()

	switch r.PostForm.Get("action") {
	case "browse_book":
		f.mu.Lock()
		reply := f.browseReply
		f.mu.Unlock()
		w.Write([]byte(reply))
	case "create_token":
		f.handleRenew(w, r)
	default:
		http.Error(w, "bad action", http.StatusBadRequest)
	}
}

func (f *fakeArchive) handleRenew(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.renewCalls++
	call := f.renewCalls
	f.renewStarts = append(f.renewStarts, time.Now())
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	var delay time.Duration
	if f.renewDelay != nil {
		delay = f.renewDelay(call)
	}
	reply := f.renewReply(call)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Write([]byte(reply))
}

func (f *fakeArchive) handleGrant(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	if r.PostForm.Get("action") != "grant_access" {
		http.Error(w, "bad action", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.loanCalls++
	reply := f.grantReply
	f.mu.Unlock()
	w.Write([]byte(reply))
}

func (f *fakeArchive) handleDetails(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/details/"+testBookID {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	body := f.detailsHTML
	f.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.Write([]byte(body))
}

func (f *fakeArchive) handleMetadata(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body := f.metaReply
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *fakeArchive) handlePage(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	f.mu.Lock()
	f.pageCalls++
	f.lastReferer = r.Header.Get("Referer")
	page, ok := f.pages[file]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	select {
	case f.pageStarted <- struct{}{}:
	default:
	}
	if page.block != nil {
		select {
		case <-page.block:
		case <-r.Context().Done():
			return
		}
	}

	body := append([]byte(nil), page.plain...)
	if page.version != "" {
		counter := make([]byte, 16)
		copy(counter, page.nonce[:])
		for i := 0; i < 8; i++ {
			counter[15-i] = byte(page.seed >> (8 * i))
		}
		w.Header().Set("X-Obfuscate", page.version+"|"+base64.StdEncoding.EncodeToString(counter))
		if page.version == "1" {
			// The key is derived from the URL exactly as the client requested it.
			requestURL := "http://" + r.Host + r.URL.RequestURI()
			encryptCTR(f.t, DeriveKey(requestURL), counter, body)
		}
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(body)
}

// encryptCTR ciphers the first 1024 bytes with the standard library's AES-CTR.
func encryptCTR(t *testing.T, key, iv, body []byte) {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	n := len(body)
	if n > 1024 {
		n = 1024
	}
	cipher.NewCTR(block, iv).XORKeyStream(body[:n], body[:n])
}

func flatForm(r *http.Request) map[string]string {
	out := map[string]string{}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out
}

func (f *fakeArchive) stats() (renewCalls, maxInFlight, pageCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewCalls, f.maxInFlight, f.pageCalls
}

// openLoan returns a loan already borrowed against the fake server
func (f *fakeArchive) openLoan(t *testing.T) (*Session, *Loan) {
	t.Helper()
	s := f.session(t)
	l := NewLoan(s, nil)
	require.NoError(t, l.Borrow(context.Background(), testBookID))
	return s, l
}

// update mutates the fake's replies under its lock
func (f *fakeArchive) update(fn func(f *fakeArchive)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
