// Package models defines the entity vocabulary shared by the request pipeline and the view state.
//
// The repertoire backend exposes four entity roots:
//   - [Artist]
//   - [Album]
//   - [Song]
//   - [Playlist]
//
// Entity payloads are opaque to the pipeline. What the client does need to know is where each
// root lives ([EntityPaths]), how to recognize a delete of one of them ([EntityPaths.Match]), and
// which cascade flags a delete carried ([DeleteFlags]).
package models
