// Package fakerest serves a small in-memory DSpace-like HAL REST API. It
// backs the data service tests and the example server.
package fakerest

import (
	"bufio"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// APIPath is the root of the REST API
const APIPath = "/server/api"

var plurals = map[string]string{
	"community":    "communities",
	"collection":   "collections",
	"item":         "items",
	"bitstream":    "bitstreams",
	"relationship": "relationships",
}

var types = func() map[string]string {
	m := make(map[string]string, len(plurals))
	for t, p := range plurals {
		m[p] = t
	}
	return m
}()

// Object is a stored resource without its links
type Object map[string]any

// Backend holds the fixtures and counts the requests it served
type Backend struct {
	mu      sync.RWMutex
	objects map[string]map[string]Object
	order   map[string][]string
	hits    map[string]int
	nextRel int

	user     string
	password string
	token    string
	latency  time.Duration
}

// Option configures a Backend
type Option func(*Backend)

// WithLatency delays every API response
func WithLatency(d time.Duration) Option {
	return func(b *Backend) {
		b.latency = d
	}
}

// WithCredentials sets the login accepted by the authn endpoint and the token it hands out
func WithCredentials(user, password, token string) Option {
	return func(b *Backend) {
		b.user = user
		b.password = password
		b.token = token
	}
}

// New creates a backend seeded with Fixtures
func New(opts ...Option) *Backend {
	b := &Backend{
		objects:  make(map[string]map[string]Object),
		order:    make(map[string][]string),
		hits:     make(map[string]int),
		nextRel:  1,
		user:     "admin@example.com",
		password: "admin",
		token:    "fake-token",
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, f := range Fixtures() {
		b.Put(f.Type, f.ID, f.Fields)
	}
	return b
}

// Put stores fields as the resource of resourceType with id, replacing any previous one
func (b *Backend) Put(resourceType, id string, fields Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(resourceType, id, fields)
}

func (b *Backend) putLocked(resourceType, id string, fields Object) {
	if b.objects[resourceType] == nil {
		b.objects[resourceType] = make(map[string]Object)
	}
	if _, exists := b.objects[resourceType][id]; !exists {
		b.order[resourceType] = append(b.order[resourceType], id)
	}
	copied := make(Object, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	b.objects[resourceType][id] = copied

	if resourceType == "relationship" {
		if n, err := strconv.Atoi(id); err == nil && n >= b.nextRel {
			b.nextRel = n + 1
		}
	}
}

// Hits returns how many requests were served for method and path
func (b *Backend) Hits(method, p string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hits[method+" "+p]
}

// App returns the fiber app serving the API
func (b *Backend) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})

	app.Use(b.count)

	api := app.Group(APIPath)
	api.Get("/", b.root)
	api.Post("/authn/login", b.login)

	core := api.Group("/core")
	core.Get("/relationships/search/:method", b.searchRelationships)
	core.Post("/relationships", b.createRelationship)
	core.Get("/items/:id/relationships", b.itemRelationships)
	core.Get("/:plural", b.list)
	core.Post("/:plural", b.create)
	core.Get("/:plural/:id", b.get)
	core.Put("/:plural/:id", b.replace)
	core.Delete("/:plural/:id", b.delete)

	return app
}

func (b *Backend) count(c *fiber.Ctx) error {
	b.mu.Lock()
	b.hits[c.Method()+" "+c.Path()]++
	b.mu.Unlock()

	if b.latency > 0 {
		time.Sleep(b.latency)
	}
	return c.Next()
}

func notFound(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":  fiber.StatusNotFound,
		"error":   "Not Found",
		"message": what + " not found",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"status":  fiber.StatusBadRequest,
		"error":   "Bad Request",
		"message": message,
	})
}

func hal(c *fiber.Ctx, status int, body fiber.Map) error {
	c.Set(fiber.HeaderContentType, "application/hal+json")
	return c.Status(status).JSON(body)
}

func apiURL(c *fiber.Ctx) string {
	return c.BaseURL() + APIPath
}

func selfLink(c *fiber.Ctx, resourceType, id string) string {
	return fmt.Sprintf("%s/core/%s/%s", apiURL(c), plurals[resourceType], id)
}

func link(href string) fiber.Map {
	return fiber.Map{"href": href}
}

func (b *Backend) root(c *fiber.Ctx) error {
	links := fiber.Map{"self": link(apiURL(c))}
	for _, p := range plurals {
		links[p] = link(apiURL(c) + "/core/" + p)
	}
	links["authn"] = link(apiURL(c) + "/authn")

	return hal(c, fiber.StatusOK, fiber.Map{
		"dspaceName": "Fake DSpace",
		"_links":     links,
	})
}

func (b *Backend) login(c *fiber.Ctx) error {
	if c.FormValue("user") != b.user || c.FormValue("password") != b.password {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status":  fiber.StatusUnauthorized,
			"message": "Authentication failed",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"token": b.token})
}

// render adds type, id and links to a stored object
func (b *Backend) render(c *fiber.Ctx, resourceType, id string, obj Object) fiber.Map {
	out := make(fiber.Map, len(obj)+4)
	for k, v := range obj {
		out[k] = v
	}
	out["type"] = resourceType
	out["id"] = id

	self := selfLink(c, resourceType, id)
	links := fiber.Map{"self": link(self)}

	switch resourceType {
	case "relationship":
		if left, ok := obj["leftItem"].(string); ok {
			links["leftItem"] = link(selfLink(c, "item", left))
		}
		if right, ok := obj["rightItem"].(string); ok {
			links["rightItem"] = link(selfLink(c, "item", right))
		}
		delete(out, "leftItem")
		delete(out, "rightItem")
	default:
		out["uuid"] = id
	}
	if resourceType == "item" {
		links["relationships"] = link(self + "/relationships")
	}
	out["_links"] = links
	return out
}

func (b *Backend) get(c *fiber.Ctx) error {
	resourceType, ok := types[c.Params("plural")]
	if !ok {
		return notFound(c, "endpoint "+c.Params("plural"))
	}
	id := c.Params("id")

	b.mu.RLock()
	obj, ok := b.objects[resourceType][id]
	b.mu.RUnlock()
	if !ok {
		return notFound(c, resourceType+" "+id)
	}
	return hal(c, fiber.StatusOK, b.render(c, resourceType, id, obj))
}

func (b *Backend) list(c *fiber.Ctx) error {
	resourceType, ok := types[c.Params("plural")]
	if !ok {
		return notFound(c, "endpoint "+c.Params("plural"))
	}

	b.mu.RLock()
	ids := append([]string(nil), b.order[resourceType]...)
	b.mu.RUnlock()

	return b.page(c, resourceType, ids)
}

// page renders the requested page of ids as a HAL collection
func (b *Backend) page(c *fiber.Ctx, resourceType string, ids []string) error {
	number := c.QueryInt("page", 0)
	size := c.QueryInt("size", 20)
	if number < 0 || size <= 0 {
		return badRequest(c, "invalid page or size")
	}

	total := len(ids)
	totalPages := int(math.Ceil(float64(total) / float64(size)))

	start := number * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	b.mu.RLock()
	elements := make([]fiber.Map, 0, end-start)
	for _, id := range ids[start:end] {
		if obj, ok := b.objects[resourceType][id]; ok {
			elements = append(elements, b.render(c, resourceType, id, obj))
		}
	}
	b.mu.RUnlock()

	self := c.BaseURL() + c.OriginalURL()
	links := fiber.Map{"self": link(self)}
	if number+1 < totalPages {
		links["next"] = link(withPage(self, number+1))
	}
	if number > 0 {
		links["prev"] = link(withPage(self, number-1))
	}

	body := fiber.Map{
		"_links": links,
		"page": fiber.Map{
			"size":          size,
			"totalElements": total,
			"totalPages":    totalPages,
			"number":        number,
		},
	}
	if len(elements) > 0 {
		body["_embedded"] = fiber.Map{plurals[resourceType]: elements}
	}
	return hal(c, fiber.StatusOK, body)
}

func withPage(href string, number int) string {
	base, query, _ := strings.Cut(href, "?")
	params := strings.Split(query, "&")
	kept := params[:0]
	for _, p := range params {
		if p != "" && !strings.HasPrefix(p, "page=") {
			kept = append(kept, p)
		}
	}
	kept = append(kept, "page="+strconv.Itoa(number))
	sort.Strings(kept)
	return base + "?" + strings.Join(kept, "&")
}

func (b *Backend) create(c *fiber.Ctx) error {
	resourceType, ok := types[c.Params("plural")]
	if !ok || resourceType == "relationship" {
		return notFound(c, "endpoint "+c.Params("plural"))
	}

	var fields Object
	if err := c.BodyParser(&fields); err != nil {
		return badRequest(c, "invalid body")
	}
	stripLinks(fields)

	id := uuid.NewString()
	b.Put(resourceType, id, fields)

	return hal(c, fiber.StatusCreated, b.render(c, resourceType, id, fields))
}

func (b *Backend) replace(c *fiber.Ctx) error {
	resourceType, ok := types[c.Params("plural")]
	if !ok {
		return notFound(c, "endpoint "+c.Params("plural"))
	}
	id := c.Params("id")

	var fields Object
	if err := c.BodyParser(&fields); err != nil {
		return badRequest(c, "invalid body")
	}
	stripLinks(fields)

	b.mu.Lock()
	if _, exists := b.objects[resourceType][id]; !exists {
		b.mu.Unlock()
		return notFound(c, resourceType+" "+id)
	}
	b.putLocked(resourceType, id, fields)
	b.mu.Unlock()

	return hal(c, fiber.StatusOK, b.render(c, resourceType, id, fields))
}

func (b *Backend) delete(c *fiber.Ctx) error {
	resourceType, ok := types[c.Params("plural")]
	if !ok {
		return notFound(c, "endpoint "+c.Params("plural"))
	}
	id := c.Params("id")

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[resourceType][id]; !exists {
		return notFound(c, resourceType+" "+id)
	}
	delete(b.objects[resourceType], id)
	order := b.order[resourceType][:0]
	for _, existing := range b.order[resourceType] {
		if existing != id {
			order = append(order, existing)
		}
	}
	b.order[resourceType] = order

	return c.SendStatus(fiber.StatusNoContent)
}

func stripLinks(fields Object) {
	for _, k := range []string{"_links", "_embedded", "type", "id", "uuid"} {
		delete(fields, k)
	}
}

// relationshipsWhere lists relationship ids matching keep, in creation order
func (b *Backend) relationshipsWhere(keep func(Object) bool) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ids []string
	for _, id := range b.order["relationship"] {
		if rel, ok := b.objects["relationship"][id]; ok && keep(rel) {
			ids = append(ids, id)
		}
	}
	return ids
}

func involves(rel Object, itemID string) bool {
	return rel["leftItem"] == itemID || rel["rightItem"] == itemID
}

func (b *Backend) itemRelationships(c *fiber.Ctx) error {
	itemID := c.Params("id")

	b.mu.RLock()
	_, exists := b.objects["item"][itemID]
	b.mu.RUnlock()
	if !exists {
		return notFound(c, "item "+itemID)
	}

	return b.page(c, "relationship", b.relationshipsWhere(func(rel Object) bool {
		return involves(rel, itemID)
	}))
}

func (b *Backend) searchRelationships(c *fiber.Ctx) error {
	if c.Params("method") != "byLabel" {
		return notFound(c, "search method "+c.Params("method"))
	}
	label := c.Query("label")
	dso := c.Query("dso")
	if label == "" || dso == "" {
		return badRequest(c, "label and dso are required")
	}

	return b.page(c, "relationship", b.relationshipsWhere(func(rel Object) bool {
		return involves(rel, dso) && (rel["leftwardValue"] == label || rel["rightwardValue"] == label)
	}))
}

func (b *Backend) createRelationship(c *fiber.Ctx) error {
	typeID := c.Query("relationshipType")
	if typeID == "" {
		return badRequest(c, "relationshipType is required")
	}

	var itemIDs []string
	scanner := bufio.NewScanner(strings.NewReader(string(c.Body())))
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if line != strings.TrimSpace(line) {
			return badRequest(c, "malformed uri-list line "+strconv.Quote(line))
		}
		itemIDs = append(itemIDs, path.Base(line))
	}
	if len(itemIDs) != 2 {
		return badRequest(c, "expected two item uris")
	}

	b.mu.Lock()
	for _, id := range itemIDs {
		if _, ok := b.objects["item"][id]; !ok {
			b.mu.Unlock()
			return notFound(c, "item "+id)
		}
	}
	id := strconv.Itoa(b.nextRel)
	fields := Object{
		"leftItem":         itemIDs[0],
		"rightItem":        itemIDs[1],
		"relationshipType": typeID,
		"leftPlace":        0,
		"rightPlace":       0,
	}
	if v := c.Query("leftwardValue"); v != "" {
		fields["leftwardValue"] = v
	}
	if v := c.Query("rightwardValue"); v != "" {
		fields["rightwardValue"] = v
	}
	b.putLocked("relationship", id, fields)
	b.mu.Unlock()

	return hal(c, fiber.StatusCreated, b.render(c, "relationship", id, fields))
}
