// Package topic selects the biomedical concept a run is about.
//
// Selection is fail-soft: the PubMed lookup is attempted first and any
// failure is logged and replaced by a random pick from a fixed list, so
// Select always returns a usable concept.
package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	bhttp "biomedtube/http"
)

// DefaultBaseURL is the NCBI E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Source records where a concept came from.
type Source string

const (
	SourcePubMed   Source = "pubmed"
	SourceFallback Source = "fallback"
)

// Sentinel errors for the PubMed lookup. They never escape Select.
var (
	ErrNoResults         = errors.New("topic: search returned no articles")
	ErrMalformedResponse = errors.New("topic: malformed response")
	ErrEmptyTitle        = errors.New("topic: article has no usable title")
)

// DefaultFallback is the list used when a Selector has none configured.
var DefaultFallback = []string{
	"CRISPR", "Immunotherapy", "mRNA Vaccines", "Microbiome", "Stem Cells",
}

// Concept is the topic of one run.
type Concept struct {
	// Name is the non-empty topic text.
	Name string
	// Source is SourcePubMed or SourceFallback.
	Source Source
	// PMID is the PubMed ID the name was taken from, if any.
	PMID string
}

// Selector picks a Concept from PubMed, falling back to a fixed list.
type Selector struct {
	Client     *bhttp.Client
	BaseURL    string
	SearchTerm string
	MaxResults int
	// MaxLength caps the concept length in runes.
	MaxLength int
	APIKey    string
	Email     string
	Fallback  []string

	rand *rand.Rand
}

// NewSelector creates a Selector with the PubMed defaults.
func NewSelector(client *bhttp.Client) *Selector {
	return &Selector{
		Client:     client,
		BaseURL:    DefaultBaseURL,
		SearchTerm: "biomedicine",
		MaxResults: 5,
		MaxLength:  100,
		Fallback:   DefaultFallback,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand replaces the random source used for article and fallback picks.
func (s *Selector) SetRand(r *rand.Rand) {
	s.rand = r
}

// intn draws from the selector's source, or the global one for a Selector
// built without NewSelector.
func (s *Selector) intn(n int) int {
	if s.rand == nil {
		return rand.Intn(n)
	}
	return s.rand.Intn(n)
}

// Select returns a concept. It never fails.
func (s *Selector) Select(ctx context.Context) Concept {
	name, pmid, err := s.lookup(ctx)
	if err != nil {
		log.Printf("topic: pubmed lookup failed, using fallback list: %v", err)
		return s.fallback()
	}
	log.Printf("topic: selected PubMed article %s", pmid)
	return Concept{Name: name, Source: SourcePubMed, PMID: pmid}
}

// fallback picks uniformly from the fallback list.
func (s *Selector) fallback() Concept {
	list := s.Fallback
	if len(list) == 0 {
		list = DefaultFallback
	}
	return Concept{Name: list[s.intn(len(list))], Source: SourceFallback}
}

type esearchResponse struct {
	Result *struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryArticle struct {
	Title string `json:"title"`
}

func (s *Selector) lookup(ctx context.Context) (string, string, error) {
	if s.Client == nil {
		return "", "", errors.New("topic: no http client configured")
	}

	q := s.baseParams()
	q.Set("term", s.SearchTerm)
	q.Set("retmax", fmt.Sprint(s.MaxResults))

	var search esearchResponse
	if err := s.Client.GetJSON(ctx, s.BaseURL+"/esearch.fcgi?"+q.Encode(), nil, &search); err != nil {
		return "", "", fmt.Errorf("esearch: %w", err)
	}
	if search.Result == nil {
		return "", "", fmt.Errorf("esearch: %w: missing esearchresult", ErrMalformedResponse)
	}
	if len(search.Result.IDList) == 0 {
		return "", "", ErrNoResults
	}

	pmid := search.Result.IDList[s.intn(len(search.Result.IDList))]

	q = s.baseParams()
	q.Set("id", pmid)

	var summary struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := s.Client.GetJSON(ctx, s.BaseURL+"/esummary.fcgi?"+q.Encode(), nil, &summary); err != nil {
		return "", "", fmt.Errorf("esummary %s: %w", pmid, err)
	}
	raw, ok := summary.Result[pmid]
	if !ok {
		return "", "", fmt.Errorf("esummary %s: %w: article missing from result", pmid, ErrMalformedResponse)
	}
	var article esummaryArticle
	if err := json.Unmarshal(raw, &article); err != nil {
		return "", "", fmt.Errorf("esummary %s: %w: %v", pmid, ErrMalformedResponse, err)
	}

	name := CleanTitle(article.Title, s.MaxLength)
	if name == "" {
		return "", "", fmt.Errorf("esummary %s: %w", pmid, ErrEmptyTitle)
	}
	return name, pmid, nil
}

func (s *Selector) baseParams() url.Values {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("retmode", "json")
	q.Set("tool", "biomedtube")
	if s.APIKey != "" {
		q.Set("api_key", s.APIKey)
	}
	if s.Email != "" {
		q.Set("email", s.Email)
	}
	return q
}

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// CleanTitle strips inline markup and entities from a PubMed title, collapses
// whitespace, drops a trailing period and truncates to maxLen runes.
func CleanTitle(title string, maxLen int) string {
	t := markupPattern.ReplaceAllString(title, "")
	t = html.UnescapeString(t)
	t = strings.Join(strings.Fields(t), " ")
	t = strings.TrimSuffix(t, ".")

	if maxLen > 0 && utf8.RuneCountInString(t) > maxLen {
		t = string([]rune(t)[:maxLen])
	}
	return strings.TrimSpace(t)
}
