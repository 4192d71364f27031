package collection

// URIGenerator builds the identifiers handed out for collections,
// containers and objects.
type URIGenerator interface {
	CollectionURI(collection string) string
	ContainerURI(collection, container string) string
	ObjectURI(collection, container, object string) string
}

// DefaultBase is the base of DefaultURIGenerator when none is configured.
const DefaultBase = "https://storage.onroerenderfgoed.be/"

// DefaultURIGenerator mirrors the HTTP routes below Base.
type DefaultURIGenerator struct {
	Base string
}

func (g DefaultURIGenerator) base() string {
	if g.Base == "" {
		return DefaultBase
	}
	return g.Base
}

func (g DefaultURIGenerator) CollectionURI(collection string) string {
	return g.base() + "collections/" + collection
}

func (g DefaultURIGenerator) ContainerURI(collection, container string) string {
	return g.CollectionURI(collection) + "/containers/" + container
}

func (g DefaultURIGenerator) ObjectURI(collection, container, object string) string {
	return g.ContainerURI(collection, container) + "/" + object
}

// PatternURIGenerator appends the keys to Pattern, joined by Separator
// ("/" when empty).
type PatternURIGenerator struct {
	Pattern   string
	Separator string
}

func (g PatternURIGenerator) sep() string {
	if g.Separator == "" {
		return "/"
	}
	return g.Separator
}

func (g PatternURIGenerator) CollectionURI(collection string) string {
	return g.Pattern + collection
}

func (g PatternURIGenerator) ContainerURI(collection, container string) string {
	return g.Pattern + collection + g.sep() + container
}

func (g PatternURIGenerator) ObjectURI(collection, container, object string) string {
	return g.ContainerURI(collection, container) + g.sep() + object
}
