package main

import "carwash/internal/app"

// @title       Carwash KYC API
// @version     1.0
// @BasePath    /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
