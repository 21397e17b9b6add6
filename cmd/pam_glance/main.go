// Package main is the PAM authentication module: a cgo c-shared library
// exporting pam_sm_authenticate and friends, calling into authengine for
// the actual face-match decision.
package main

/*
#cgo LDFLAGS: -lpam
#include <security/pam_appl.h>
#include <security/pam_modules.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/glance-auth/glance/pkg/authengine"
	"github.com/glance-auth/glance/pkg/pamadapter"
)

const processName = "pam_glance"

func init() {
	pamadapter.InitSyslog(processName, false)
}

//export pam_sm_authenticate
func pam_sm_authenticate(pamh *C.pam_handle_t, flags C.int, argc C.int, argv **C.char) C.int {
	argvSlice := cArgsToSlice(argc, argv)
	args := pamadapter.ParseArgs(argvSlice)

	if args.Debug {
		pamadapter.InitSyslog(processName, true)
	}

	username, err := getUser(pamh)
	if err != nil {
		return C.int(pamadapter.PAMAuthErr)
	}

	cfg := pamadapter.ResolveConfig(args, username)
	result := authengine.Authenticate(cfg)

	return C.int(pamadapter.MapOutcome(result.Outcome))
}

//export pam_sm_setcred
func pam_sm_setcred(pamh *C.pam_handle_t, flags C.int, argc C.int, argv **C.char) C.int {
	return C.int(pamadapter.PAMSuccess)
}

//export pam_sm_acct_mgmt
func pam_sm_acct_mgmt(pamh *C.pam_handle_t, flags C.int, argc C.int, argv **C.char) C.int {
	return C.int(pamadapter.PAMSuccess)
}

func cArgsToSlice(argc C.int, argv **C.char) []string {
	if argc <= 0 || argv == nil {
		return nil
	}
	raw := (*[1 << 20]*C.char)(unsafe.Pointer(argv))[:argc:argc]
	out := make([]string, 0, int(argc))
	for _, a := range raw {
		out = append(out, C.GoString(a))
	}
	return out
}

func getUser(pamh *C.pam_handle_t) (string, error) {
	var cUsername *C.char
	ret := C.pam_get_user(pamh, &cUsername, nil)
	if ret != C.PAM_SUCCESS {
		return "", fmt.Errorf("pam_get_user failed: %d", int(ret))
	}
	return C.GoString(cUsername), nil
}

// main is required for buildmode=c-shared but is never invoked; PAM calls
// the exported entry points directly.
func main() {}
