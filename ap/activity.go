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

// Activity is an action performed by an actor, like Follow or Create.
type Activity struct {
	Envelope
	Actor      Ref[*Actor] `json:"actor,omitzero"`
	Object     Ref[Object] `json:"object,omitzero"`
	Target     Ref[Object] `json:"target,omitzero"`
	Result     Ref[Object] `json:"result,omitzero"`
	Origin     Ref[Object] `json:"origin,omitzero"`
	Instrument Ref[Object] `json:"instrument,omitzero"`
}

// Inner returns the inlined object of an activity if it's an activity too, like the Follow inside
// an Undo.
func (a *Activity) Inner() (*Activity, bool) {
	if o, ok := a.Object.Value(); ok {
		inner, ok := o.(*Activity)
		return inner, ok
	}
	return nil, false
}
