package activitypub

import (
	"encoding/json"
	"fmt"
)

// PublicCollection is the well-known URI addressing "everyone".
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

// publicAliases are the shapes partners actually send for the public
// collection.
var publicAliases = map[string]bool{
	PublicCollection: true,
	"as:Public":      true,
	"Public":         true,
}

// Activity is the envelope of an inbound federation message. Incoming JSON
// is adversarial: only the fields handlers actually consume are extracted,
// and the polymorphic object stays raw until a handler types it.
type Activity struct {
	Context interface{}     `json:"@context"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object"`
	To      StringList      `json:"to"`
	Cc      StringList      `json:"cc"`
	Content string          `json:"content"` // EmojiReact carries content on the envelope
	Tag     []Tag           `json:"tag"`

	Raw []byte `json:"-"` // original body, kept for the activity log
}

// Object is the typed view of an embedded activity object. The same shape
// covers Note/Page/Article/Question/Answer and wrapped activities
// (Undo{Follow}, Announce{Create}): unused fields stay zero.
type Object struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Actor        string          `json:"actor"` // wrapped activities only
	AttributedTo string          `json:"attributedTo"`
	Content      string          `json:"content"`
	Name         string          `json:"name"`
	InReplyTo    URIValue        `json:"inReplyTo"`
	QuoteURL     string          `json:"quoteUrl"`
	Published    string          `json:"published"`
	EndTime      string          `json:"endTime"`
	Closed       string          `json:"closed"`
	To           StringList      `json:"to"`
	Cc           StringList      `json:"cc"`
	OneOf        []PollChoice    `json:"oneOf"`
	AnyOf        []PollChoice    `json:"anyOf"`
	Tag          []Tag           `json:"tag"`
	Attachment   []Attachment    `json:"attachment"`
	Object       json.RawMessage `json:"object"` // one more nesting level (Announce of a Create)
}

// Tag covers Hashtag, Mention and Emoji tag objects.
type Tag struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Href string `json:"href"`
	Icon struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"icon"`
}

// Attachment is a media attachment reference.
type Attachment struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
	Name      string `json:"name"`
}

// PollChoice is a Question option (oneOf/anyOf entry).
type PollChoice struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Replies struct {
		TotalItems int `json:"totalItems"`
	} `json:"replies"`
}

// ParseActivity decodes an inbound activity envelope.
func ParseActivity(body []byte) (*Activity, error) {
	var act Activity
	if err := json.Unmarshal(body, &act); err != nil {
		return nil, fmt.Errorf("parsing activity: %w", err)
	}
	if act.Type == "" || act.Actor == "" {
		return nil, fmt.Errorf("activity missing type or actor")
	}
	act.Raw = body
	return &act, nil
}

// ObjectURI returns the object's URI whether it is a bare string or an
// embedded object with an id.
func (a *Activity) ObjectURI() string {
	if len(a.Object) == 0 {
		return ""
	}
	var uri string
	if err := json.Unmarshal(a.Object, &uri); err == nil {
		return uri
	}
	if obj, ok := a.EmbeddedObject(); ok {
		return obj.ID
	}
	return ""
}

// EmbeddedObject decodes the object when it is embedded rather than a URI.
func (a *Activity) EmbeddedObject() (*Object, bool) {
	if len(a.Object) == 0 || a.Object[0] != '{' {
		return nil, false
	}
	var obj Object
	if err := json.Unmarshal(a.Object, &obj); err != nil {
		return nil, false
	}
	return &obj, true
}

// ObjectType returns the embedded object's type, or "" for URI objects.
func (a *Activity) ObjectType() string {
	if obj, ok := a.EmbeddedObject(); ok {
		return obj.Type
	}
	return ""
}

// ObjectURI returns the wrapped object's URI whether it is a bare string
// or one more embedded object.
func (o *Object) ObjectURI() string {
	if len(o.Object) == 0 {
		return ""
	}
	var uri string
	if err := json.Unmarshal(o.Object, &uri); err == nil {
		return uri
	}
	if inner, ok := o.InnerObject(); ok {
		return inner.ID
	}
	return ""
}

// InnerObject unwraps one more nesting level, e.g. the Note inside an
// announced Create.
func (o *Object) InnerObject() (*Object, bool) {
	if len(o.Object) == 0 || o.Object[0] != '{' {
		return nil, false
	}
	var inner Object
	if err := json.Unmarshal(o.Object, &inner); err != nil {
		return nil, false
	}
	return &inner, true
}

// StringList tolerates partners sending a single string where the
// vocabulary allows an array.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []interface{}
	if err := json.Unmarshal(data, &many); err != nil {
		// Unusable shape; treat as empty rather than failing the envelope.
		*l = nil
		return nil
	}
	out := make(StringList, 0, len(many))
	for _, v := range many {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// Contains reports whether the list names the public collection when given
// one of its aliases, or the exact value otherwise.
func (l StringList) Contains(value string) bool {
	wantPublic := publicAliases[value]
	for _, v := range l {
		if v == value || (wantPublic && publicAliases[v]) {
			return true
		}
	}
	return false
}

// URIValue tolerates a URI given either as a string or as an embedded
// object with an id.
type URIValue string

func (u *URIValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = URIValue(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*u = URIValue(obj.ID)
		return nil
	}
	*u = ""
	return nil
}

func (u URIValue) String() string {
	return string(u)
}
