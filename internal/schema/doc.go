// Package schema compiles a CUE tag vocabulary into engine kinds.
//
// A vocabulary lists the tags of a document and how the engine treats them:
//
//	kind: item: {
//		id:       "id"
//		required: ["id"]
//	}
//	kind: note: {
//		id:   "#text"
//		text: true
//	}
//	kind: order: {
//		id:       "no"
//		required: ["no", "customer"]
//		children: ["line"]
//	}
//	kind: tool: extends: "item"
//
// A kind that extends another inherits its id attribute, text flag and
// required attributes unless it sets its own.
package schema
