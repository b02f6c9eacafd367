// Package platform contains OS and platform glue: filesystem helpers, URL
// validation for the supported video host, filename sanitising for artifact
// delivery, and availability checks for the external tools the service runs.
package platform
