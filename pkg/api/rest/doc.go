// Package rest implements the HTTP API over the collection registry.
//
// Routes:
//
//	GET    /
//	GET    /collections
//	POST   /collections/{collection}/containers
//	PUT    /collections/{collection}/containers/{container}
//	DELETE /collections/{collection}/containers/{container}
//	GET    /collections/{collection}/containers/{container}            (Accept: application/json or application/zip)
//	POST   /collections/{collection}/containers/{container}
//	PUT    /collections/{collection}/containers/{container}/{object}
//	GET    /collections/{collection}/containers/{container}/{object}
//	DELETE /collections/{collection}/containers/{container}/{object}
//	GET    /collections/{collection}/containers/{container}/{object}/meta
//	GET    /collections/{collection}/containers/{container}/{object}/{member...}
//	PUT    /collections/{collection}/containers/{container}/{object}/{member...}?new_file_name=
//
// Handlers stay thin: they resolve the collection, call its store or the
// archive codec and map the apperr kind of a failure to a status code.
package rest
