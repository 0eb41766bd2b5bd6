// Package testutil provides testing utilities for the storefront client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/shopspring/decimal"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one request seen by the mock backend.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	RequestID     string
}

// Gate holds listing requests for one search term until released.
type Gate struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
	relOnce sync.Once
}

// Arrived is closed when the first held request reaches the backend.
func (g *Gate) Arrived() <-chan struct{} { return g.arrived }

// Release lets every held request proceed.
func (g *Gate) Release() { g.relOnce.Do(func() { close(g.release) }) }

// MockBackend is a configurable in-memory product backend.
type MockBackend struct {
	server *httptest.Server

	mu        sync.RWMutex
	products  []domain.Product
	nextID    int64
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	gates     map[string]*Gate
	requests  []RecordedRequest
	token     string
	users     map[string]string
	refreshes map[string]bool
	issued    int
	expiresIn int
}

// NewMockBackend creates a new mock backend seeded with products.
func NewMockBackend(products ...domain.Product) *MockBackend {
	m := &MockBackend{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		gates:     make(map[string]*Gate),
		users:     make(map[string]string),
		refreshes: make(map[string]bool),
		expiresIn: 3600,
	}
	for _, p := range products {
		m.add(p)
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server and releases held requests.
func (m *MockBackend) Close() {
	m.mu.Lock()
	for _, g := range m.gates {
		g.Release()
	}
	m.mu.Unlock()
	m.server.Close()
}

// Reset clears the recorded requests.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler overrides the handler for a specific path.
func (m *MockBackend) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// ClearHandler removes a path override.
func (m *MockBackend) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// RequireToken makes every /products request demand "Bearer <token>".
// An empty token disables the check.
func (m *MockBackend) RequireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// AddUser registers login credentials.
func (m *MockBackend) AddUser(email, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[email] = password
}

// SetExpiresIn sets the expires_in returned by login/refresh (0 omits it).
func (m *MockBackend) SetExpiresIn(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiresIn = seconds
}

// Hold blocks listing requests whose search equals search until the gate is released.
func (m *MockBackend) Hold(search string) *Gate {
	g := &Gate{arrived: make(chan struct{}), release: make(chan struct{})}
	m.mu.Lock()
	m.gates[search] = g
	m.mu.Unlock()
	return g
}

// Requests returns a copy of the recorded requests.
func (m *MockBackend) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBackend) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// ListCount returns how many listing requests matched page, search and sort.
// A zero page matches any page; an empty sort matches any sort.
func (m *MockBackend) ListCount(page int, search string, sort domain.Sort) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.requests {
		if r.Method != http.MethodGet || r.Path != "/products" {
			continue
		}
		if page != 0 && r.Query.Get("page") != strconv.Itoa(page) {
			continue
		}
		if r.Query.Get("search") != search {
			continue
		}
		if sort != "" && r.Query.Get("sort") != string(sort) {
			continue
		}
		n++
	}
	return n
}

// Products returns the current catalog.
func (m *MockBackend) Products() []domain.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Product, len(m.products))
	copy(out, m.products)
	return out
}

func (m *MockBackend) add(p domain.Product) domain.Product {
	if p.ID == 0 {
		p.ID = m.nextID + 1
	}
	if p.ID > m.nextID {
		m.nextID = p.ID
	}
	if p.UnitType == "" {
		p.UnitType = domain.UnitEach
	}
	m.products = append(m.products, p)
	return p
}

func (m *MockBackend) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
	})
	handler, overridden := m.handlers[r.URL.Path]
	token := m.token
	m.mu.Unlock()

	if overridden {
		handler(w, r)
		return
	}

	switch {
	case r.URL.Path == "/auth/login" && r.Method == http.MethodPost:
		m.login(w, r)
		return
	case r.URL.Path == "/auth/refresh" && r.Method == http.MethodPost:
		m.refresh(w, r)
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/products") {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}

	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}

	if r.URL.Path == "/products" {
		switch r.Method {
		case http.MethodGet:
			m.list(w, r)
		case http.MethodPost:
			m.create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/products/"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid id"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		m.get(w, id)
	case http.MethodPatch, http.MethodPut:
		m.update(w, r, id)
	case http.MethodDelete:
		m.delete(w, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockBackend) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := q.Get("search")

	m.mu.RLock()
	gate := m.gates[search]
	m.mu.RUnlock()
	if gate != nil {
		gate.once.Do(func() { close(gate.arrived) })
		select {
		case <-gate.release:
		case <-r.Context().Done():
			return
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 10
	}

	m.mu.RLock()
	matched := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if search == "" || strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	sortProducts(matched, domain.Sort(q.Get("sort")))

	total := len(matched)
	lastPage := domain.LastPage(total, limit)
	data := []domain.Product{}
	if start := (page - 1) * limit; start < total {
		end := start + limit
		if end > total {
			end = total
		}
		data = matched[start:end]
	}

	writeJSON(w, http.StatusOK, domain.PageResult{Data: data, Total: total, Page: page, LastPage: lastPage})
}

func sortProducts(products []domain.Product, s domain.Sort) {
	var less func(a, b domain.Product) bool
	switch s {
	case domain.SortPriceAsc:
		less = func(a, b domain.Product) bool { return a.Price.LessThan(b.Price) }
	case domain.SortPriceDesc:
		less = func(a, b domain.Product) bool { return a.Price.GreaterThan(b.Price) }
	case domain.SortNameAsc:
		less = func(a, b domain.Product) bool { return a.Name < b.Name }
	case domain.SortNameDesc:
		less = func(a, b domain.Product) bool { return a.Name > b.Name }
	default:
		less = func(a, b domain.Product) bool { return a.ID > b.ID }
	}
	sort.SliceStable(products, func(i, j int) bool { return less(products[i], products[j]) })
}

func (m *MockBackend) get(w http.ResponseWriter, id int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not found"})
}

func (m *MockBackend) create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		UnitType domain.UnitType `json:"unitType"`
		Image    string          `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"message": {"name should not be empty"}})
		return
	}

	m.mu.Lock()
	p := m.add(domain.Product{Name: in.Name, Price: in.Price, UnitType: in.UnitType, Image: in.Image})
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, p)
}

func (m *MockBackend) update(w http.ResponseWriter, r *http.Request, id int64) {
	var patch domain.ProductPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.products {
		if p.ID != id {
			continue
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.UnitType != nil {
			p.UnitType = *patch.UnitType
		}
		if patch.Image != nil {
			p.Image = *patch.Image
		}
		m.products[i] = p
		writeJSON(w, http.StatusOK, p)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not found"})
}

func (m *MockBackend) delete(w http.ResponseWriter, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not found"})
}

func (m *MockBackend) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	m.mu.Lock()
	defer m.mu.Unlock()
	if pw, ok := m.users[in.Email]; !ok || pw != in.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, m.issueLocked(in.Email))
}

func (m *MockBackend) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.refreshes[in.RefreshToken] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
		return
	}
	delete(m.refreshes, in.RefreshToken)
	writeJSON(w, http.StatusOK, m.issueLocked(""))
}

// issueLocked mints a token pair and makes the access token the required one.
func (m *MockBackend) issueLocked(email string) map[string]any {
	m.issued++
	access := fmt.Sprintf("access-%d", m.issued)
	refresh := fmt.Sprintf("refresh-%d", m.issued)
	m.refreshes[refresh] = true
	if m.token != "" {
		m.token = access
	}

	out := map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
	}
	if m.expiresIn > 0 {
		out["expires_in"] = m.expiresIn
	}
	if email != "" {
		out["user"] = map[string]string{"id": "1", "email": email, "name": "Admin"}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SeedProducts builds n products named "Product 01".. with increasing prices.
func SeedProducts(n int) []domain.Product {
	out := make([]domain.Product, 0, n)
	for i := 1; i <= n; i++ {
		unit := domain.UnitEach
		if i%2 == 0 {
			unit = domain.UnitGrams
		}
		out = append(out, domain.Product{
			ID:       int64(i),
			Name:     fmt.Sprintf("Product %02d", i),
			Price:    decimal.NewFromInt(int64(i * 100)),
			UnitType: unit,
		})
	}
	return out
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message": "Unauthorized", "statusCode": 401}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error", "statusCode": 500}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
