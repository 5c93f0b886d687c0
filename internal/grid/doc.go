// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package grid loads job graphs from HCL "grid" files into a format-agnostic
// model that the registry turns into runnable jobs.
//
// A grid file holds any number of job blocks and at most one scheduler block
// across the whole grid:
//
//	scheduler {
//	  timeout = "30s"
//	  window  = 4
//	}
//
//	job "http_request" "ping" {
//	  critical = false
//	  arguments {
//	    url = "http://${env.HOST}/health"
//	  }
//	}
//
//	job "print" "report" {
//	  requires = ["ping"]
//	  arguments {
//	    message = upper("done")
//	  }
//	}
//
// Job names are unique across all loaded files. The arguments block is kept
// as an undecoded body; each job kind decodes it into its own input struct
// with JobSpec.Decode, against an evaluation context exposing environment
// variables as env.NAME and a small set of string functions.
package grid
