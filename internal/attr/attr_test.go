package attr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/odm/internal/odmerr"
	"github.com/roach88/odm/internal/trait"
)

type catalog map[string]*Entity

func (c catalog) Entity(name string) (*Entity, bool) {
	e, ok := c[name]
	return e, ok
}

func newAttr(t *testing.T, id KindID, model, name string, opts Options) Attribute {
	t.Helper()
	k, err := Builtins().Lookup(id)
	require.NoError(t, err)
	return k.New(model, name, opts)
}

// blog returns a processed catalog with User, Post and an Address cluster.
func blog(t *testing.T) catalog {
	t.Helper()
	cat := catalog{
		"User":    {Name: "User", PrimaryKey: "id", Schema: Schema{}},
		"Post":    {Name: "Post", PrimaryKey: "id", Schema: Schema{}},
		"Address": {Name: "Address", Cluster: true, PrimaryKey: "id", Schema: Schema{}},
		"Photo":   {Name: "Photo", Cluster: true, PrimaryKey: "id", Schema: Schema{}},
	}
	cat["User"].Schema["id"] = newAttr(t, KindString, "User", "id", Options{"required": false})
	cat["User"].Schema["name"] = newAttr(t, KindString, "User", "name", nil)
	cat["User"].Schema["posts"] = newAttr(t, KindHasMany, "User", "posts", Options{"model": "Post", "via": "author"})
	cat["User"].Schema["address"] = newAttr(t, KindNestOne, "User", "address", Options{"cluster": "Address", "required": false})
	cat["Post"].Schema["id"] = newAttr(t, KindString, "Post", "id", Options{"required": false})
	cat["Post"].Schema["author"] = newAttr(t, KindHasOne, "Post", "author", Options{"model": "User"})
	cat["Post"].Schema["media"] = newAttr(t, KindPolyMany, "Post", "media", Options{"types": []any{"Photo"}, "required": false})
	cat["Address"].Schema["city"] = newAttr(t, KindString, "Address", "city", nil)
	cat["Photo"].Schema["url"] = newAttr(t, KindString, "Photo", "url", nil)

	for _, e := range cat {
		for _, a := range e.Schema {
			require.NoError(t, a.ValidateSelf(cat), a)
		}
	}
	for _, e := range cat {
		for _, a := range e.Schema {
			require.NoError(t, a.ProcessOptions(cat), a)
		}
	}
	return cat
}

func TestBuiltinKinds(t *testing.T) {
	r := Builtins()
	assert.Len(t, r.Kinds(), 12)

	k, err := r.ByName("objectid")
	require.NoError(t, err)
	assert.Equal(t, KindObjectID, k.ID)

	k, key, ok := r.ByAlias("nestMany")
	require.True(t, ok)
	assert.Equal(t, KindNestMany, k.ID)
	assert.Equal(t, "cluster", key)

	_, err = r.ByName("Text")
	assert.True(t, odmerr.HasCode(err, odmerr.CodeUnknownKind))

	assert.Contains(t, r.Aliases(), "polymorphic")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	err := r.Register(NewKind(KindString, ValueString, trait.Base[*Setup]{}, newPrimitive))
	assert.True(t, odmerr.HasCode(err, odmerr.CodeDuplicateKind))

	alias := NewKind(KindID(99), ValueString, trait.Base[*Setup]{}, newPrimitive).
		WithAliases(map[string]string{"hasOne": "model"})
	err = r.Register(alias)
	assert.True(t, odmerr.HasCode(err, odmerr.CodeDuplicateKind))
}

func TestCapabilities(t *testing.T) {
	cat := blog(t)

	author := cat["Post"].Schema["author"]
	assert.True(t, Has(author, trait.Relation))
	assert.True(t, Has(author, trait.Associative))
	assert.False(t, Has(author, trait.Nesting))
	rel, ok := author.(Relational)
	require.True(t, ok)
	assert.Equal(t, "User", rel.TargetEntity().Name)

	address := cat["User"].Schema["address"]
	nest, ok := address.(Nesting)
	require.True(t, ok)
	assert.Equal(t, "Address", nest.ClusterEntity().Name)
	e, card := address.(Associative).Association()
	assert.Equal(t, "Address", e.Name)
	assert.Equal(t, One, card)

	posts := cat["User"].Schema["posts"].(Associative)
	_, card = posts.Association()
	assert.Equal(t, Many, card)

	media, ok := cat["Post"].Schema["media"].(Polymorphic)
	require.True(t, ok)
	assert.Equal(t, DefaultTagKey, media.TagKey())
	assert.True(t, media.Multiple())
	_, isAssoc := cat["Post"].Schema["media"].(Associative)
	assert.False(t, isAssoc)

	assert.Equal(t, ValueString, author.ValueType())
	assert.Equal(t, ValueNone, cat["User"].Schema["posts"].ValueType())
}

func TestValidateSelfErrors(t *testing.T) {
	cat := blog(t)
	testCases := []struct {
		name string
		kind KindID
		opts Options
		want odmerr.Code
	}{
		{"missing model", KindHasOne, Options{}, odmerr.CodeRelationMissingModel},
		{"unknown model", KindHasOne, Options{"model": "Nope"}, odmerr.CodeRelationInvalidModel},
		{"cluster target", KindHasOne, Options{"model": "Address"}, odmerr.CodeRelationInvalidModel},
		{"missing via", KindHasMany, Options{"model": "Post"}, odmerr.CodeRelationMissingVia},
		{"unknown via", KindHasMany, Options{"model": "Post", "via": "nope"}, odmerr.CodeRelationInvalidVia},
		{"via not hasOne", KindHasMany, Options{"model": "Post", "via": "media"}, odmerr.CodeRelationInvalidVia},
		{"missing cluster", KindNestOne, Options{}, odmerr.CodeNestingMissingCluster},
		{"model as cluster", KindNestMany, Options{"cluster": "User"}, odmerr.CodeNestingInvalidCluster},
		{"nesting enum", KindNestOne, Options{"cluster": "Address", "enum": []any{"a"}}, odmerr.CodeEnumDisabled},
		{"missing types", KindPolyOne, Options{}, odmerr.CodePolyMissingTypes},
		{"empty types", KindPolyMany, Options{"types": []any{}}, odmerr.CodePolyMissingTypes},
		{"unknown type", KindPolymorphic, Options{"types": []any{"Photo", "Video"}}, odmerr.CodePolyInvalidType},
		{"empty tag", KindPolyOne, Options{"types": []any{"Photo"}, "tag": ""}, odmerr.CodePolyMissingTag},
		{"enum not array", KindString, Options{"enum": "a"}, odmerr.CodeEnumNotArray},
		{"enum wrong type", KindString, Options{"enum": []any{"a", 1}}, odmerr.CodeEnumInvalidType},
		{"validator not func", KindString, Options{"validator": 3}, odmerr.CodeValidatorInvalid},
		{"default wrong type", KindNumber, Options{"default": "x"}, odmerr.CodeDefaultInvalid},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAttr(t, tc.kind, "Comment", "field", tc.opts)
			err := a.ValidateSelf(cat)
			require.Error(t, err)
			assert.True(t, odmerr.HasCode(err, tc.want), "got %v", err)
		})
	}
}

func TestEnumErrorsAggregate(t *testing.T) {
	a := newAttr(t, KindString, "User", "role", Options{"enum": []any{1, true}})
	err := a.ValidateSelf(catalog{})
	var comp *odmerr.Composite
	require.True(t, errors.As(err, &comp))
	assert.Len(t, comp.Errors, 2)
}

func TestValidateModelValue(t *testing.T) {
	a := newAttr(t, KindString, "User", "role", Options{
		"enum": []any{"admin", "member"},
		"validator": func(v any) bool {
			return v != "member"
		},
	})
	require.NoError(t, a.ValidateSelf(catalog{}))

	assert.NoError(t, a.ValidateModelValue("admin"))
	assert.Equal(t, odmerr.CodeValidationRequired, odmerr.CodeOf(a.ValidateModelValue(nil)))
	assert.Equal(t, odmerr.CodeValidationEnum, odmerr.CodeOf(a.ValidateModelValue("guest")))
	assert.Equal(t, odmerr.CodeValidationValidator, odmerr.CodeOf(a.ValidateModelValue("member")))

	err := a.ValidateModelValue(7)
	var comp *odmerr.Composite
	require.True(t, errors.As(err, &comp))
	assert.Equal(t, []odmerr.Code{odmerr.CodeValidationEnum, odmerr.CodeValidationType}, comp.Codes())

	optional := newAttr(t, KindNumber, "User", "age", Options{"required": false})
	assert.NoError(t, optional.ValidateModelValue(nil))
	assert.NoError(t, optional.ValidateModelValue(int64(3)))
}

func TestValidatorBoundToAttribute(t *testing.T) {
	var seen Attribute
	a := newAttr(t, KindString, "User", "name", Options{
		"validator": func(self Attribute, v any) error {
			seen = self
			return nil
		},
	})
	require.NoError(t, a.ValidateModelValue("x"))
	assert.Same(t, a, seen)
}

func TestDateAndObjectID(t *testing.T) {
	d := newAttr(t, KindDate, "Post", "at", nil)
	assert.Equal(t, odmerr.CodeValidationDate, odmerr.CodeOf(d.ValidateModelValue("2024-01-01")))

	o := newAttr(t, KindObjectID, "Post", "ref", nil)
	hex := "5f1d7a3e9b1e8a0012345678"
	assert.True(t, MatchesType(o, hex))
	assert.True(t, MatchesType(o, primitive.NewObjectID()))
	assert.False(t, MatchesType(o, 7))
	assert.NoError(t, o.ValidateModelValue(hex))
	assert.Equal(t, odmerr.CodeValidationObjectID, odmerr.CodeOf(o.ValidateModelValue("short")))

	native, err := o.(NativeConverter).ToNative([]any{hex, "plain"})
	require.NoError(t, err)
	list := native.([]any)
	id, ok := list[0].(primitive.ObjectID)
	require.True(t, ok)
	assert.Equal(t, hex, id.Hex())
	assert.Equal(t, "plain", list[1])

	assert.Len(t, NewObjectID(), 24)
}

func TestProcessOptionsIsIdempotent(t *testing.T) {
	cat := blog(t)
	a := cat["Post"].Schema["author"]
	delete(cat, "User")
	require.NoError(t, a.ProcessOptions(cat))
	assert.Equal(t, "User", a.(Relational).TargetEntity().Name)
}

func identityNest(_ *Entity, bag Bag) any { return bag }

func TestRelationAccessors(t *testing.T) {
	cat := blog(t)
	in := NewInstaller(identityNest, true)
	in.InstallSchema(cat["Post"])

	bag := Bag{"author": "u1"}
	acc, ok := in.Lookup("author")
	require.True(t, ok)
	v, err := acc.Get(bag)
	require.NoError(t, err)
	assert.Equal(t, Ref{Model: "User", Field: "id", Value: "u1"}, v)

	raw, _ := in.Lookup("author_id")
	v, err = raw.Get(bag)
	require.NoError(t, err)
	assert.Equal(t, "u1", v)

	users := NewInstaller(identityNest, true)
	users.InstallSchema(cat["User"])
	posts, _ := users.Lookup("posts")
	v, err = posts.Get(Bag{"id": "u1"})
	require.NoError(t, err)
	ref := v.(Ref)
	assert.True(t, ref.Many)
	assert.Equal(t, map[string]any{"author": "u1"}, ref.Filter())
	assert.True(t, odmerr.HasCode(posts.Set(Bag{}, nil), odmerr.CodeReadOnly))
}

func TestNestedViewsShareBacking(t *testing.T) {
	cat := blog(t)
	in := NewInstaller(identityNest, true)
	in.InstallSchema(cat["User"])

	bag := Bag{"address": map[string]any{"city": "Oslo"}}
	acc, _ := in.Lookup("address")
	v, err := acc.Get(bag)
	require.NoError(t, err)
	v.(Bag)["city"] = "Bergen"
	assert.Equal(t, "Bergen", bag["address"].(map[string]any)["city"])

	assert.True(t, odmerr.HasCode(acc.Set(bag, 7), odmerr.CodeValidationType))
}

func TestNestManyAssignment(t *testing.T) {
	many := newAttr(t, KindNestMany, "User", "addresses", Options{"cluster": "Address"})
	cat := blog(t)
	require.NoError(t, many.ValidateSelf(cat))
	require.NoError(t, many.ProcessOptions(cat))

	strict := NewInstaller(identityNest, true)
	many.Install(strict)
	acc, _ := strict.Lookup("addresses")

	first := map[string]any{"city": "Oslo"}
	bag := Bag{}
	require.NoError(t, acc.Set(bag, []map[string]any{first}))

	err := acc.Set(bag, "not an array")
	assert.Equal(t, odmerr.CodeValidationNotArray, odmerr.CodeOf(err))
	assert.Len(t, bag["addresses"], 1)

	lenient := NewInstaller(identityNest, false)
	many.Install(lenient)
	acc, _ = lenient.Lookup("addresses")
	require.NoError(t, acc.Set(bag, "not an array"))
	assert.Len(t, bag["addresses"], 1)

	require.NoError(t, many.(*NestMany).Append(bag, map[string]any{"city": "Rome"}))
	views, err := acc.Get(bag)
	require.NoError(t, err)
	require.Len(t, views, 2)
	views.([]any)[0].(Bag)["city"] = "Turin"
	assert.Equal(t, "Turin", first["city"])

	assert.Equal(t, odmerr.CodeValidationNotArray, odmerr.CodeOf(many.ValidateModelValue("x")))
	assert.True(t, odmerr.HasCode(many.ValidateModelValue([]any{map[string]any{}}), odmerr.CodeValidationRequired))
}

func TestPolyValues(t *testing.T) {
	cat := blog(t)
	media := cat["Post"].Schema["media"]

	assert.NoError(t, media.ValidateModelValue([]any{map[string]any{"_type": "Photo", "url": "a.png"}}))
	assert.True(t, odmerr.HasCode(media.ValidateModelValue([]any{map[string]any{"url": "a.png"}}), odmerr.CodePolyMissingTag))
	assert.True(t, odmerr.HasCode(media.ValidateModelValue([]any{map[string]any{"_type": "Video"}}), odmerr.CodePolyInvalidType))

	in := NewInstaller(identityNest, true)
	in.InstallSchema(cat["Post"])
	acc, _ := in.Lookup("media")
	bag := Bag{}
	assert.True(t, odmerr.HasCode(acc.Set(bag, []any{map[string]any{"_type": "Video"}}), odmerr.CodePolyInvalidType))
	require.NoError(t, acc.Set(bag, []any{map[string]any{"_type": "Photo", "url": "b.png"}}))
	views, err := acc.Get(bag)
	require.NoError(t, err)
	assert.Equal(t, "b.png", views.([]any)[0].(Bag)["url"])
}

func TestDefaultsApplyOnRead(t *testing.T) {
	calls := 0
	a := newAttr(t, KindNumber, "User", "score", Options{"default": func() any {
		calls++
		return 10
	}})
	in := NewInstaller(identityNest, true)
	a.Install(in)
	acc, _ := in.Lookup("score")

	bag := Bag{}
	v, err := acc.Get(bag)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	_, _ = acc.Get(bag)
	assert.Equal(t, 1, calls)
}

func TestValidateRecordAlwaysComposite(t *testing.T) {
	cat := blog(t)
	err := ValidateRecord(cat["Post"], Bag{})
	var comp *odmerr.Composite
	require.True(t, errors.As(err, &comp))
	assert.Equal(t, []odmerr.Code{odmerr.CodeValidationRequired}, comp.Codes())
	assert.NoError(t, ValidateRecord(cat["Post"], Bag{"author": "u1"}))
}
