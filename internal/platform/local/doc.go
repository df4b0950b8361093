// Package local implements the platform collaborators on top of a folder that
// plays the role of a managed device.
//
// Layout under the device root:
//
//	device.yaml                 device-owner flag and supported permissions
//	packages/<id>/base<ext>     the installed package archive
//	packages/<id>/package.yaml  installed version, uninstall block, granted permissions
//	sessions/<uuid><ext>        staged install sessions
//
// Committed sessions replace the installed archive atomically with go-update,
// so readers observe either the old or the new package, never a partial one.
package local
