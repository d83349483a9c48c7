/*
Copyright 2023 - 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ap

// Type is the value of the "type" property.
type Type string

const (
	GenericType Type = "Object"

	Accept          Type = "Accept"
	Add             Type = "Add"
	Announce        Type = "Announce"
	Arrive          Type = "Arrive"
	Block           Type = "Block"
	Create          Type = "Create"
	Delete          Type = "Delete"
	Dislike         Type = "Dislike"
	EmojiReact      Type = "EmojiReact"
	Flag            Type = "Flag"
	Follow          Type = "Follow"
	Ignore          Type = "Ignore"
	Invite          Type = "Invite"
	Join            Type = "Join"
	Leave           Type = "Leave"
	Like            Type = "Like"
	Listen          Type = "Listen"
	Move            Type = "Move"
	Offer           Type = "Offer"
	Read            Type = "Read"
	Reject          Type = "Reject"
	Remove          Type = "Remove"
	TentativeAccept Type = "TentativeAccept"
	TentativeReject Type = "TentativeReject"
	Travel          Type = "Travel"
	Undo            Type = "Undo"
	Update          Type = "Update"
	View            Type = "View"

	Application  Type = "Application"
	Group        Type = "Group"
	Organization Type = "Organization"
	Person       Type = "Person"
	Service      Type = "Service"

	Article      Type = "Article"
	Audio        Type = "Audio"
	Document     Type = "Document"
	Emoji        Type = "Emoji"
	Event        Type = "Event"
	Image        Type = "Image"
	Note         Type = "Note"
	Page         Type = "Page"
	Place        Type = "Place"
	Profile      Type = "Profile"
	Question     Type = "Question"
	Relationship Type = "Relationship"
	Video        Type = "Video"

	CollectionType        Type = "Collection"
	OrderedCollection     Type = "OrderedCollection"
	CollectionPage        Type = "CollectionPage"
	OrderedCollectionPage Type = "OrderedCollectionPage"
	LinkType              Type = "Link"
	Mention               Type = "Mention"
	Hashtag               Type = "Hashtag"
	TombstoneType         Type = "Tombstone"
	PropertyValueType     Type = "PropertyValue"
)

var constructors = map[Type]func() Object{
	GenericType: func() Object { return &Generic{} },

	CollectionType:        newCollection,
	OrderedCollection:     newCollection,
	CollectionPage:        newCollection,
	OrderedCollectionPage: newCollection,

	LinkType: newLink,
	Mention:  newLink,
	Hashtag:  newLink,

	TombstoneType:     func() Object { return &Tombstone{} },
	PropertyValueType: func() Object { return &PropertyValue{} },
}

func init() {
	for _, t := range []Type{
		Accept, Add, Announce, Arrive, Block, Create, Delete, Dislike, EmojiReact, Flag, Follow,
		Ignore, Invite, Join, Leave, Like, Listen, Move, Offer, Read, Reject, Remove,
		TentativeAccept, TentativeReject, Travel, Undo, Update, View,
	} {
		constructors[t] = func() Object { return &Activity{} }
	}

	for _, t := range []Type{Application, Group, Organization, Person, Service} {
		constructors[t] = func() Object { return &Actor{} }
	}

	for _, t := range []Type{
		Article, Audio, Document, Emoji, Event, Image, Note, Page, Place, Profile, Question,
		Relationship, Video,
	} {
		constructors[t] = func() Object { return &Content{} }
	}
}

func newCollection() Object { return &Collection{} }

func newLink() Object { return &Link{} }

// Known determines whether a type is one of the supported variants.
func (t Type) Known() bool {
	_, ok := constructors[t]
	return ok
}

// IsActivity determines whether a type is an activity verb.
func (t Type) IsActivity() bool {
	return t.is(func(o Object) bool { _, ok := o.(*Activity); return ok })
}

// IsActor determines whether a type is an actor kind.
func (t Type) IsActor() bool {
	return t.is(func(o Object) bool { _, ok := o.(*Actor); return ok })
}

// IsContent determines whether a type is a content kind, like a note or an image.
func (t Type) IsContent() bool {
	return t.is(func(o Object) bool { _, ok := o.(*Content); return ok })
}

// IsCollection determines whether a type is a collection or a collection page.
func (t Type) IsCollection() bool {
	return t.is(func(o Object) bool { _, ok := o.(*Collection); return ok })
}

func (t Type) is(f func(Object) bool) bool {
	if c, ok := constructors[t]; ok {
		return f(c())
	}
	return false
}

// UnmarshalJSON accepts a string or a list of strings. A list is reduced to its first known type.
func (t *Type) UnmarshalJSON(b []byte) error {
	parsed, err := parseType(b)
	if err != nil {
		*t = ""
		return nil
	}

	*t = parsed
	return nil
}
