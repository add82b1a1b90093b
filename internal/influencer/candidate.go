package influencer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Candidate is one influencer record as returned by the search service. Records from the
// search service are passed through without reordering or filtering.
type Candidate struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	Followers string `json:"followers"`
	Niche     string `json:"niche"`
	Avatar    string `json:"avatar"`

	// Raw holds the record as received when it does not match the typed encoding, such as
	// numeric counts or fields this type does not name. It is what gets marshalled back.
	Raw json.RawMessage `json:"-"`
}

type candidateFields Candidate

func (c Candidate) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return json.Marshal(candidateFields(c))
}

func (c *Candidate) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("influencer record must be an object")
	}
	*c = Candidate{
		ID:        textField(fields["id"]),
		Name:      textField(fields["name"]),
		Platform:  textField(fields["platform"]),
		Followers: textField(fields["followers"]),
		Niche:     textField(fields["niche"]),
		Avatar:    textField(fields["avatar"]),
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	typed, err := json.Marshal(candidateFields(*c))
	if err != nil {
		return err
	}
	if !bytes.Equal(compact.Bytes(), typed) {
		c.Raw = json.RawMessage(compact.Bytes())
	}
	return nil
}

func textField(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

const placeholderAvatar = "/placeholder.svg?height=40&width=40"

var fallbackCandidates = []Candidate{
	{ID: "inf1", Name: "Fashionista Flo", Platform: "Instagram", Followers: "1.2M", Niche: "Fashion, Lifestyle", Avatar: placeholderAvatar},
	{ID: "inf2", Name: "Tech Guru Tim", Platform: "YouTube", Followers: "800K", Niche: "Tech Reviews, Gadgets", Avatar: placeholderAvatar},
	{ID: "inf3", Name: "Foodie Fiona", Platform: "TikTok", Followers: "500K", Niche: "Food, Cooking", Avatar: placeholderAvatar},
	{ID: "inf4", Name: "Traveler Tom", Platform: "Instagram", Followers: "1.5M", Niche: "Travel, Adventure", Avatar: placeholderAvatar},
}

// Fallback returns a fresh copy of the built-in candidate list.
func Fallback() []Candidate {
	out := make([]Candidate, len(fallbackCandidates))
	copy(out, fallbackCandidates)
	return out
}

// Summary is the subset of a candidate that is shown to the model when it narrates selection.
type Summary struct {
	Name      string `json:"name"`
	Niche     string `json:"niche"`
	Followers string `json:"followers"`
}

func Summaries(candidates []Candidate) []Summary {
	out := make([]Summary, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Summary{Name: c.Name, Niche: c.Niche, Followers: c.Followers})
	}
	return out
}
