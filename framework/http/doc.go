// Package http is the request side of the framework: the Dispatcher that
// serves matched routes, the ControllerRegistry behind controller-name
// targets, and Request/Response helpers.
//
//	controllers := gohttp.NewControllerRegistry()
//	controllers.Handle("home", homeHandler)
//
//	d := gohttp.NewDispatcher(routes,
//	    gohttp.WithControllers(controllers),
//	    gohttp.WithServices(manager),
//	)
//	http.ListenAndServe(":8000", d)
//
// Inside a handler:
//
//	req := gohttp.NewRequest(r)
//	id := req.RouteParam("id")
//	gohttp.NewResponse(w).Success(map[string]any{"id": id})
package http
